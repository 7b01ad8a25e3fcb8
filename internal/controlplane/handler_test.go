package controlplane

import (
	"context"
	"testing"

	"github.com/careorion/blobserver/internal/flowengine"
	"github.com/careorion/blobserver/internal/types"
)

type fakeEngine struct {
	connectFlowID   int64
	connectErr      error
	lastSpecs       []flowengine.SourceSpec
	lastDetector    string
	disconnectCount int
	params          map[string]types.Value
	detectors       []string
	sources         []string
	subsources      []int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{params: map[string]types.Value{}}
}

func (f *fakeEngine) Connect(client flowengine.ClientAddr, detectorKind string, specs []flowengine.SourceSpec) (int64, error) {
	f.lastDetector = detectorKind
	f.lastSpecs = specs
	return f.connectFlowID, f.connectErr
}
func (f *fakeEngine) Disconnect(client flowengine.ClientAddr, flowID *int64) int {
	return f.disconnectCount
}
func (f *fakeEngine) SetParameter(flowID int64, target flowengine.Target, sourceIndex int, name string, v types.Value) error {
	f.params[name] = v
	return nil
}
func (f *fakeEngine) GetParameter(flowID int64, target flowengine.Target, sourceIndex int, name string) (types.Value, error) {
	return f.params[name], nil
}
func (f *fakeEngine) ListDetectors() []string { return f.detectors }
func (f *fakeEngine) ListSources() []string   { return f.sources }
func (f *fakeEngine) ListSubsources(kind string) ([]int, error) {
	return f.subsources, nil
}

// fakeTransport satisfies Transport without opening any real socket.
type fakeTransport struct {
	sent []Message
}

func (t *fakeTransport) Listen(ctx context.Context, onMessage func(host string, m Message)) error {
	return nil
}
func (t *fakeTransport) SendTo(host string, m Message) error {
	t.sent = append(t.sent, m)
	return nil
}
func (t *fakeTransport) Close() error { return nil }

func TestHandleConnectTooFewArguments(t *testing.T) {
	fe := newFakeEngine()
	ft := &fakeTransport{}
	h := NewHandler(fe, ft)
	h.handleConnect("1.2.3.4", []types.Value{types.StringValue("1.2.3.4")})
	if len(ft.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(ft.sent))
	}
	if ft.sent[0].Args[0].S != "Too few arguments" {
		t.Fatalf("expected 'Too few arguments', got %q", ft.sent[0].Args[0].S)
	}
}

func TestHandleConnectSuccess(t *testing.T) {
	fe := newFakeEngine()
	fe.connectFlowID = 3
	ft := &fakeTransport{}
	h := NewHandler(fe, ft)
	h.handleConnect("1.2.3.4", []types.Value{
		types.StringValue("1.2.3.4"),
		types.IntValue(9000),
		types.StringValue("threshold-blobs"),
		types.StringValue("mock"),
		types.IntValue(0),
	})
	if fe.lastDetector != "threshold-blobs" {
		t.Fatalf("expected detector forwarded, got %q", fe.lastDetector)
	}
	if len(fe.lastSpecs) != 1 || fe.lastSpecs[0].Kind != "mock" {
		t.Fatalf("expected one mock source spec, got %+v", fe.lastSpecs)
	}
	if len(ft.sent) != 1 || ft.sent[0].Args[0].S != "Connected" || ft.sent[0].Args[1].I != 3 {
		t.Fatalf("unexpected reply: %+v", ft.sent)
	}
}

func TestHandleSetGetParameterDetector(t *testing.T) {
	fe := newFakeEngine()
	ft := &fakeTransport{}
	h := NewHandler(fe, ft)
	h.handleSetParameter("1.2.3.4", []types.Value{
		types.StringValue("1.2.3.4"),
		types.IntValue(1),
		types.StringValue("Detector"),
		types.StringValue("threshold"),
		types.IntValue(180),
	})
	if fe.params["threshold"].I != 180 {
		t.Fatalf("expected threshold 180 forwarded, got %+v", fe.params["threshold"])
	}

	ft.sent = nil
	h.handleGetParameter("1.2.3.4", []types.Value{
		types.StringValue("1.2.3.4"),
		types.IntValue(1),
		types.StringValue("Detector"),
		types.StringValue("threshold"),
	})
	if len(ft.sent) != 1 || ft.sent[0].Args[1].I != 180 {
		t.Fatalf("unexpected get reply: %+v", ft.sent)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := Message{Path: "/connect", Args: []types.Value{types.StringValue("x"), types.IntValue(5), types.FloatValue(1.5), types.BoolValue(true)}}
	buf, err := Encode(m)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume %d bytes, got %d", len(buf), n)
	}
	if got.Path != m.Path || len(got.Args) != len(m.Args) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Args[0].S != "x" || got.Args[1].I != 5 || got.Args[2].F != 1.5 || got.Args[3].B != true {
		t.Fatalf("round trip value mismatch: %+v", got.Args)
	}
}
