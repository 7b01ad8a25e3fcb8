package tracker

import (
	kalmanfilter "github.com/LdDl/kalman-filter"

	"github.com/careorion/blobserver/internal/types"
)

// TrackedBlob is a blob whose identity persists across frames (spec §3).
// Its ID is assigned once by the owning Tracker and never reused.
type TrackedBlob struct {
	id int64

	latest    types.Measurement
	predicted types.Point

	predictor *kalmanfilter.Kalman2D

	lifetime int
	updated  bool
}

// ID returns the blob's stable identity.
func (b *TrackedBlob) ID() int64 { return b.id }

// Measurement returns the most recently assigned measurement.
func (b *TrackedBlob) Measurement() types.Measurement { return b.latest }

// Predicted returns the position predicted for the current frame by
// the motion model (used only for assignment, per spec §4.3 step 1).
func (b *TrackedBlob) Predicted() types.Point { return b.predicted }

// Lifetime returns the blob's remaining lifetime counter.
func (b *TrackedBlob) Lifetime() int { return b.lifetime }

// Updated reports whether this blob was assigned a measurement in the
// most recent MatchFrame call.
func (b *TrackedBlob) Updated() bool { return b.updated }

const (
	kalmanUx      = 1.0
	kalmanUy      = 1.0
	kalmanStdDevA = 2.0
	kalmanStdDevM = 0.1
)

func newTrackedBlob(id int64, m types.Measurement, lifetime int) *TrackedBlob {
	kf := kalmanfilter.NewKalman2D(
		1.0, kalmanUx, kalmanUy, kalmanStdDevA, kalmanStdDevM, kalmanStdDevM,
		kalmanfilter.WithState2D(float64(m.Position.X), float64(m.Position.Y)),
	)
	return &TrackedBlob{
		id:        id,
		latest:    m,
		predicted: m.Position,
		predictor: kf,
		lifetime:  lifetime,
		updated:   true,
	}
}

// predict advances the motion model one step; the resulting position
// is what the assignment step compares against (spec §4.3 step 1).
func (b *TrackedBlob) predict() {
	b.predictor.Predict()
	x, y := b.predictor.GetState()
	b.predicted = types.Point{X: int(x), Y: int(y)}
	b.updated = false
}

// assign injects m as the new measurement, resets lifetime to L and
// marks the blob updated (spec §4.3 step 4).
func (b *TrackedBlob) assign(m types.Measurement, lifetime int) {
	_ = b.predictor.Update(float64(m.Position.X), float64(m.Position.Y))
	b.latest = m
	b.lifetime = lifetime
	b.updated = true
}

// age decrements the lifetime counter for a blob with no match this
// frame (spec §4.3 step 5).
func (b *TrackedBlob) age() {
	b.lifetime--
}
