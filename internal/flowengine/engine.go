// Package flowengine implements the Flow Engine (spec §4.4): the
// runtime owning the source and flow registries, the ~1ms capture
// thread, the ~16ms processing loop, and the command handlers the
// control plane dispatches into. Grounded on
// References/orion-prototipe/internal/core/orion.go's Orion
// orchestrator (lifecycle fields, context-driven Run, sync.WaitGroup
// joins) and on
// _examples/original_source/src/blobserver.cpp's App class (the exact
// two-mutex, two-registry shape with the capture thread's grab-then-
// reclaim pass and the OSC handlers' validate-then-mutate command
// style).
package flowengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/careorion/blobserver/internal/detector"
	"github.com/careorion/blobserver/internal/registry"
	"github.com/careorion/blobserver/internal/shm"
	"github.com/careorion/blobserver/internal/source"
	"github.com/careorion/blobserver/internal/types"
)

// CaptureInterval and ProcessInterval are the engine's two fixed
// tick periods (spec §4.4: "roughly one iteration per ~16ms" for
// processing, "every ~1ms" for capture).
const (
	CaptureInterval = time.Millisecond
	ProcessInterval = 16 * time.Millisecond
)

// ShmPrefix is prepended to a flow's ID to name its output segment
// (spec §4.4 connect: "creates the output shared-memory segment
// <prefix>_<flow_id>"), mirroring the original's "/tmp/blobserver_output_%i".
const ShmPrefix = "blobserver_output"

// Engine is the flow engine runtime (spec §4.4).
type Engine struct {
	sourceKinds   *registry.Registry[source.Source]
	detectorKinds *registry.Registry[detector.Detector]

	sources *sourceRegistry
	flows   *flowRegistry

	nextFlowID int64
	idMu       sync.Mutex

	publisher Publisher
	mask      *detector.Mask
	outWidth  int
	outHeight int

	wg sync.WaitGroup
}

// New constructs an Engine. sourceKinds and detectorKinds must already
// be populated (spec §4.5: "populated at startup; read-only
// thereafter"). publisher delivers replies and per-frame blob reports
// to control-plane subscribers. outWidth/outHeight size every flow's
// shared-memory output segment.
func New(sourceKinds *registry.Registry[source.Source], detectorKinds *registry.Registry[detector.Detector], publisher Publisher, outWidth, outHeight int) *Engine {
	return &Engine{
		sourceKinds:   sourceKinds,
		detectorKinds: detectorKinds,
		sources:       newSourceRegistry(),
		flows:         newFlowRegistry(),
		nextFlowID:    1,
		publisher:     publisher,
		outWidth:      outWidth,
		outHeight:     outHeight,
	}
}

// SetGlobalMask installs the CLI-level "--mask" global option: Connect
// hands it to every new flow's detector through SetMask, and each
// detector kind decides whether to apply it.
func (e *Engine) SetGlobalMask(m *detector.Mask) {
	e.mask = m
}

// Run starts the capture thread and processing loop, blocking until
// ctx is cancelled. Grounded on Orion.Run's context-scoped goroutine
// pair with a shared WaitGroup join on shutdown.
func (e *Engine) Run(ctx context.Context) {
	e.wg.Add(2)
	go e.captureLoop(ctx)
	go e.processingLoop(ctx)
	e.wg.Wait()
}

func (e *Engine) captureLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(CaptureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sources.grabAll()
		}
	}
}

func (e *Engine) processingLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(ProcessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.processTick()
		}
	}
}

// processTick is one iteration of spec §4.4's processing loop: snapshot
// every source's corrected frame, then for each running flow gather
// its sources' frames, detect, copy the flow's first (primary) source
// frame into its output segment, and emit the blob report inside a
// startFrame/endFrame envelope. The segment receives that input frame
// as captured; detectors produce no separate visualization image.
func (e *Engine) processTick() {
	frames := e.sources.snapshot()

	e.flows.forEachRunning(func(f *flow) {
		flowFrames := make([]source.Frame, 0, len(f.sourceIDs))
		for _, id := range f.sourceIDs {
			flowFrames = append(flowFrames, frames[id])
		}

		blobs, err := f.detector.Detect(flowFrames)
		if err != nil {
			traceID := ""
			if len(flowFrames) > 0 {
				traceID = flowFrames[0].TraceID.String()
			}
			slog.Warn("flow detect failed", "flow_id", f.id, "trace_id", traceID, "error", err)
			return
		}

		if f.output != nil && len(flowFrames) > 0 && !flowFrames[0].Empty() {
			if err := f.output.WriteImage(flowFrames[0].Pix); err != nil {
				slog.Warn("flow output write failed", "flow_id", f.id, "error", err)
			}
		}

		f.frameNbr++
		if e.publisher != nil {
			if err := e.publisher.PublishFrame(f.client, f.id, f.frameNbr, f.detector.Path(), blobRecordsFrom(blobs)); err != nil {
				slog.Warn("flow publish failed", "flow_id", f.id, "error", err)
			}
		}
	})
}

// SourceSpec names one (kind, subsource) a Connect command requests.
type SourceSpec struct {
	Kind      string
	Subsource int
}

// Connect implements spec §4.4's connect command: validate, reuse or
// construct sources, construct the detector, allocate a flow ID,
// create the output segment, and insert the flow with run=false.
// Mirrors the original's oscHandlerConnect: "Too few arguments" (no
// sources requested), "Detector type not recognized", "Unable to
// connect to source X", "The specified detector needs more sources".
func (e *Engine) Connect(client ClientAddr, detectorKind string, specs []SourceSpec) (int64, error) {
	if !e.detectorKinds.Has(detectorKind) {
		return 0, fmt.Errorf("detector type not recognized: %q", detectorKind)
	}
	det, err := e.detectorKinds.Create(detectorKind, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to create detector %q: %w", detectorKind, err)
	}
	if det.SourceCount() > len(specs) {
		return 0, fmt.Errorf("the specified detector needs more sources")
	}
	if e.mask != nil {
		det.SetMask(e.mask)
	}

	e.sources.mu.Lock()
	defer e.sources.mu.Unlock()
	e.flows.mu.Lock()
	defer e.flows.mu.Unlock()

	ids := make([]source.Identity, 0, len(specs))
	var acquired []source.Identity
	rollback := func() {
		for _, id := range acquired {
			e.sources.releaseLocked(id)
		}
	}

	for _, spec := range specs {
		id := source.Identity{Kind: spec.Kind, Subsource: spec.Subsource}
		if existing := e.sources.acquireLocked(id); existing != nil {
			ids = append(ids, id)
			acquired = append(acquired, id)
			continue
		}
		if !e.sourceKinds.Has(spec.Kind) {
			rollback()
			return 0, fmt.Errorf("unable to create source %s", spec.Kind)
		}
		src, err := e.sourceKinds.Create(spec.Kind, spec.Subsource)
		if err != nil {
			rollback()
			return 0, fmt.Errorf("unable to create source %s: %w", spec.Kind, err)
		}
		if !src.Connect() {
			rollback()
			return 0, fmt.Errorf("unable to connect to source %s", spec.Kind)
		}
		e.sources.insertLocked(id, src)
		ids = append(ids, id)
		acquired = append(acquired, id)
	}

	flowID := e.allocFlowID()
	shmName := fmt.Sprintf("%s_%d", ShmPrefix, flowID)
	seg, err := shm.Open(shmName, e.outWidth, e.outHeight)
	if err != nil {
		rollback()
		return 0, fmt.Errorf("failed to create output segment: %w", err)
	}

	e.flows.insertLocked(&flow{
		id:        flowID,
		detector:  det,
		sourceIDs: ids,
		client:    client,
		run:       false,
		output:    seg,
	})

	return flowID, nil
}

func (e *Engine) allocFlowID() int64 {
	e.idMu.Lock()
	defer e.idMu.Unlock()
	id := e.nextFlowID
	e.nextFlowID++
	return id
}

// Disconnect implements spec §4.4's disconnect command: removes every
// flow belonging to client (optionally restricted to one flow ID),
// releases its sources' referrer counts, and closes each removed
// flow's output segment. It returns the number of flows removed and
// sends no message to the removed flows' subscribers; the only
// outbound message is the control-plane handler's reply to the host
// that issued the command.
func (e *Engine) Disconnect(client ClientAddr, flowID *int64) int {
	e.sources.mu.Lock()
	defer e.sources.mu.Unlock()
	e.flows.mu.Lock()
	removed := e.flows.removeByClientLocked(client, flowID)
	e.flows.mu.Unlock()

	for _, f := range removed {
		for _, id := range f.sourceIDs {
			e.sources.releaseLocked(id)
		}
		if f.output != nil {
			_ = f.output.Close()
		}
	}
	return len(removed)
}

// Target names the recipient a set_parameter/get_parameter command
// addresses (spec §4.4: "target == Detector/Source/Start/Stop").
type Target string

const (
	TargetDetector Target = "Detector"
	TargetSource   Target = "Source"
	TargetStart    Target = "Start"
	TargetStop     Target = "Stop"
)

// SetParameter implements spec §4.4's set_parameter command: looks up
// the flow, then dispatches by target. sourceIndex addresses one of
// the flow's sources (by position in its connect-time source list)
// when target is TargetSource; it is ignored otherwise.
func (e *Engine) SetParameter(flowID int64, tgt Target, sourceIndex int, name string, v types.Value) error {
	f, ok := e.flows.get(flowID)
	if !ok {
		return fmt.Errorf("wrong flow id %d", flowID)
	}
	switch tgt {
	case TargetDetector:
		return f.detector.SetParameter(name, v)
	case TargetSource:
		if sourceIndex < 0 || sourceIndex >= len(f.sourceIDs) {
			return fmt.Errorf("wrong source index")
		}
		src, ok := e.sources.get(f.sourceIDs[sourceIndex])
		if !ok {
			return fmt.Errorf("wrong source index")
		}
		return src.SetParameter(name, v)
	case TargetStart:
		e.setRun(f, true)
		return nil
	case TargetStop:
		e.setRun(f, false)
		return nil
	default:
		return fmt.Errorf("unknown target %q", tgt)
	}
}

func (e *Engine) setRun(f *flow, run bool) {
	e.flows.mu.Lock()
	defer e.flows.mu.Unlock()
	f.run = run
}

// GetParameter implements spec §4.4's get_parameter command, the
// symmetric read path of SetParameter.
func (e *Engine) GetParameter(flowID int64, tgt Target, sourceIndex int, name string) (types.Value, error) {
	f, ok := e.flows.get(flowID)
	if !ok {
		return types.Value{}, fmt.Errorf("wrong flow id %d", flowID)
	}
	switch tgt {
	case TargetDetector:
		return f.detector.GetParameter(name)
	case TargetSource:
		if sourceIndex < 0 || sourceIndex >= len(f.sourceIDs) {
			return types.Value{}, fmt.Errorf("wrong source index")
		}
		src, ok := e.sources.get(f.sourceIDs[sourceIndex])
		if !ok {
			return types.Value{}, fmt.Errorf("wrong source index")
		}
		return src.GetParameter(name)
	default:
		return types.Value{}, fmt.Errorf("unknown target %q", tgt)
	}
}

// ListDetectors, ListSources and ListSubsources serve spec §4.4's
// enumeration commands straight from the class registries.
func (e *Engine) ListDetectors() []string { return e.detectorKinds.List() }
func (e *Engine) ListSources() []string   { return e.sourceKinds.List() }

// FlowCount and ActiveSourceCount report live engine activity (as
// opposed to ListDetectors/ListSources, which enumerate registered
// *kinds*) — used by the telemetry snapshot to publish real numbers.
func (e *Engine) FlowCount() int        { return len(e.flows.list()) }
func (e *Engine) ActiveSourceCount() int { return len(e.sources.list()) }

func (e *Engine) ListSubsources(sourceKind string) ([]int, error) {
	if !e.sourceKinds.Has(sourceKind) {
		return nil, fmt.Errorf("unknown source kind %q", sourceKind)
	}
	probe, err := e.sourceKinds.Create(sourceKind, 0)
	if err != nil {
		return nil, err
	}
	return probe.Subsources(), nil
}
