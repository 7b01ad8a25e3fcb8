package controlplane

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careorion/blobserver/internal/flowengine"
	"github.com/careorion/blobserver/internal/types"
)

// Engine is the subset of flowengine.Engine the Handler drives;
// narrowed to an interface so this package's tests can exercise it
// with a fake.
type Engine interface {
	Connect(client flowengine.ClientAddr, detectorKind string, specs []flowengine.SourceSpec) (int64, error)
	Disconnect(client flowengine.ClientAddr, flowID *int64) int
	SetParameter(flowID int64, target flowengine.Target, sourceIndex int, name string, v types.Value) error
	GetParameter(flowID int64, target flowengine.Target, sourceIndex int, name string) (types.Value, error)
	ListDetectors() []string
	ListSources() []string
	ListSubsources(sourceKind string) ([]int, error)
}

// Handler translates spec §6's logical message catalogue into Engine
// calls and serializes replies back out over a Transport. Grounded on
// References/orion-prototipe/internal/control/handler.go's
// callback-dispatch Handler, adapted from an MQTT topic subscription
// to this package's length-prefixed socket transport.
type Handler struct {
	engine    Engine
	transport Transport
}

func NewHandler(engine Engine, transport Transport) *Handler {
	return &Handler{engine: engine, transport: transport}
}

// Run listens on the transport until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	return h.transport.Listen(ctx, h.dispatch)
}

func (h *Handler) dispatch(host string, m Message) {
	switch m.Path {
	case "/connect":
		h.handleConnect(host, m.Args)
	case "/disconnect":
		h.handleDisconnect(host, m.Args)
	case "/setParameter":
		h.handleSetParameter(host, m.Args)
	case "/getParameter":
		h.handleGetParameter(host, m.Args)
	case "/detectors":
		h.handleListDetectors(host)
	case "/sources":
		h.handleListSources(host, m.Args)
	default:
		slog.Warn("controlplane: unknown path, dropping message", "path", m.Path)
	}
}

func (h *Handler) reply(host, path string, args ...types.Value) {
	if err := h.transport.SendTo(host, Message{Path: path, Args: args}); err != nil {
		slog.Warn("controlplane: reply send failed", "path", path, "error", err)
	}
}

func (h *Handler) replyError(host, path, msg string) {
	h.reply(host, path, types.StringValue(msg))
}

// handleConnect implements "ip, port, detector_kind, (source_kind,
// subsource)+" per spec §6. port is parsed but unused: replies always
// target ReplyPort (see DESIGN.md's open-question decision).
func (h *Handler) handleConnect(host string, args []types.Value) {
	if len(args) < 5 {
		h.replyError(host, "/connect", "Too few arguments")
		return
	}
	ip, ok := asString(args[0])
	if !ok {
		h.replyError(host, "/connect", "Expected ip string at position 0")
		return
	}
	if _, ok := args[1].AsInt(); !ok {
		h.replyError(host, "/connect", "Expected port integer at position 1")
		return
	}
	detectorKind, ok := asString(args[2])
	if !ok {
		h.replyError(host, "/connect", "Expected a detector type at position 2")
		return
	}

	rest := args[3:]
	if len(rest)%2 != 0 {
		h.replyError(host, "/connect", "Missing sub-source number")
		return
	}
	var specs []flowengine.SourceSpec
	for i := 0; i < len(rest); i += 2 {
		kind, ok := asString(rest[i])
		if !ok {
			h.replyError(host, "/connect", "Expected source kind string")
			return
		}
		sub, ok := rest[i+1].AsInt()
		if !ok {
			h.replyError(host, "/connect", "Expected integer as a sub-source number")
			return
		}
		specs = append(specs, flowengine.SourceSpec{Kind: kind, Subsource: sub})
	}

	flowID, err := h.engine.Connect(flowengine.ClientAddr(ip), detectorKind, specs)
	if err != nil {
		h.replyError(host, "/connect", err.Error())
		return
	}
	h.reply(host, "/connect", types.StringValue("Connected"), types.IntValue(flowID))
}

// handleDisconnect implements "ip [, flow_id]".
func (h *Handler) handleDisconnect(host string, args []types.Value) {
	if len(args) < 1 {
		h.replyError(host, "/disconnect", "Wrong number of arguments")
		return
	}
	ip, ok := asString(args[0])
	if !ok {
		h.replyError(host, "/disconnect", "Wrong number of arguments")
		return
	}
	var flowID *int64
	if len(args) >= 2 {
		if n, ok := args[1].AsInt(); ok {
			id := int64(n)
			flowID = &id
		}
	}
	n := h.engine.Disconnect(flowengine.ClientAddr(ip), flowID)
	if n == 0 {
		h.replyError(host, "/disconnect", "Wrong flow id")
		return
	}
	h.reply(host, "/disconnect", types.StringValue("Disconnected"))
}

// handleSetParameter implements "ip, flow_id, target, …": for
// target==Source the remaining args are (src_idx, name, value); for
// Detector, (name, value); for Start/Stop, none.
func (h *Handler) handleSetParameter(host string, args []types.Value) {
	if len(args) < 3 {
		h.replyError(host, "/setParameter", "Wrong number of arguments")
		return
	}
	flowIDn, ok := args[1].AsInt()
	if !ok {
		h.replyError(host, "/setParameter", "Wrong number of arguments")
		return
	}
	flowID := int64(flowIDn)
	target, ok := asString(args[2])
	if !ok {
		h.replyError(host, "/setParameter", "Wrong number of arguments")
		return
	}

	var srcIdx int
	var name string
	var value types.Value
	switch flowengine.Target(target) {
	case flowengine.TargetSource:
		if len(args) < 6 {
			h.replyError(host, "/setParameter", "Wrong number of arguments")
			return
		}
		n, ok := args[3].AsInt()
		if !ok {
			h.replyError(host, "/setParameter", "Wrong source index")
			return
		}
		srcIdx = n
		name, _ = asString(args[4])
		value = args[5]
	case flowengine.TargetDetector:
		if len(args) < 5 {
			h.replyError(host, "/setParameter", "Wrong number of arguments")
			return
		}
		name, _ = asString(args[3])
		value = args[4]
	case flowengine.TargetStart, flowengine.TargetStop:
		// no further arguments
	default:
		h.replyError(host, "/setParameter", "Unknown target")
		return
	}

	if err := h.engine.SetParameter(flowID, flowengine.Target(target), srcIdx, name, value); err != nil {
		h.replyError(host, "/setParameter", err.Error())
		return
	}
	h.reply(host, "/setParameter", types.StringValue("OK"))
}

// handleGetParameter implements "ip, flow_id, target, name [, src_idx]".
func (h *Handler) handleGetParameter(host string, args []types.Value) {
	if len(args) < 4 {
		h.replyError(host, "/getParameter", "Wrong number of arguments")
		return
	}
	flowIDn, ok := args[1].AsInt()
	if !ok {
		h.replyError(host, "/getParameter", "Wrong number of arguments")
		return
	}
	flowID := int64(flowIDn)
	target, _ := asString(args[2])
	name, _ := asString(args[3])
	srcIdx := 0
	if len(args) >= 5 {
		if n, ok := args[4].AsInt(); ok {
			srcIdx = n
		}
	}

	v, err := h.engine.GetParameter(flowID, flowengine.Target(target), srcIdx, name)
	if err != nil {
		h.replyError(host, "/getParameter", err.Error())
		return
	}
	h.reply(host, "/getParameter", types.StringValue(name), v)
}

func (h *Handler) handleListDetectors(host string) {
	kinds := h.engine.ListDetectors()
	args := make([]types.Value, 0, len(kinds))
	for _, k := range kinds {
		args = append(args, types.StringValue(k))
	}
	h.reply(host, "/detectors", args...)
}

// handleListSources implements "ip [, source_kind]": with no source
// kind, lists registered source kinds; with one, lists its subsources.
func (h *Handler) handleListSources(host string, args []types.Value) {
	if len(args) >= 2 {
		kind, _ := asString(args[1])
		subs, err := h.engine.ListSubsources(kind)
		if err != nil {
			h.replyError(host, "/sources", err.Error())
			return
		}
		vals := make([]types.Value, 0, len(subs))
		for _, s := range subs {
			vals = append(vals, types.IntValue(int64(s)))
		}
		h.reply(host, "/sources", vals...)
		return
	}
	kinds := h.engine.ListSources()
	vals := make([]types.Value, 0, len(kinds))
	for _, k := range kinds {
		vals = append(vals, types.StringValue(k))
	}
	h.reply(host, "/sources", vals...)
}

func asString(v types.Value) (string, bool) {
	if v.Kind != types.KindString {
		return "", false
	}
	return v.S, true
}

// Publisher adapts a Handler's Transport into flowengine.Publisher,
// so the engine's processing loop can emit per-frame envelopes
// without knowing about paths or encoding.
type Publisher struct {
	transport Transport
}

func NewPublisher(transport Transport) *Publisher {
	return &Publisher{transport: transport}
}

func (p *Publisher) Reply(addr flowengine.ClientAddr, path string, args ...interface{}) error {
	vals := make([]types.Value, 0, len(args))
	for _, a := range args {
		vals = append(vals, toValue(a))
	}
	return p.transport.SendTo(string(addr), Message{Path: path, Args: vals})
}

// PublishFrame emits spec §6's per-frame envelope: startFrame, one
// message per blob at the owning detector's declared path, endFrame.
func (p *Publisher) PublishFrame(addr flowengine.ClientAddr, flowID, frameNbr int64, blobPath string, blobs []flowengine.BlobRecord) error {
	if err := p.transport.SendTo(string(addr), Message{
		Path: "/startFrame",
		Args: []types.Value{types.IntValue(frameNbr), types.IntValue(flowID)},
	}); err != nil {
		return fmt.Errorf("controlplane: startFrame: %w", err)
	}
	for _, b := range blobs {
		if err := p.transport.SendTo(string(addr), Message{
			Path: blobPath,
			Args: []types.Value{
				types.IntValue(b.ID),
				types.IntValue(int64(b.X)),
				types.IntValue(int64(b.Y)),
				types.IntValue(int64(b.VX)),
				types.IntValue(int64(b.VY)),
				types.FloatValue(b.Size),
			},
		}); err != nil {
			return fmt.Errorf("controlplane: blob: %w", err)
		}
	}
	return p.transport.SendTo(string(addr), Message{
		Path: "/endFrame",
		Args: []types.Value{types.IntValue(frameNbr), types.IntValue(flowID)},
	})
}

func toValue(a interface{}) types.Value {
	switch x := a.(type) {
	case string:
		return types.StringValue(x)
	case int:
		return types.IntValue(int64(x))
	case int64:
		return types.IntValue(x)
	case float64:
		return types.FloatValue(x)
	case bool:
		return types.BoolValue(x)
	default:
		return types.StringValue(fmt.Sprintf("%v", x))
	}
}
