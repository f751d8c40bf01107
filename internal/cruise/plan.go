package cruise

import "math"

// Profile is the accelerate, cruise and stop plan for the remaining distance.
type Profile struct {
	PeakSpeed     float64 `json:"peakSpeed"`
	AccelTime     float64 `json:"accelTime"`
	AccelDistance float64 `json:"accelDistance"`
	CruiseTime    float64 `json:"cruiseTime"`
	StopTime      float64 `json:"stopTime"`
	StopDistance  float64 `json:"stopDistance"`
	ETA           float64 `json:"eta"`
	// Cruising is false when the distance is too short to hold the cruise speed
	// for longer than the margin and the plan is a pure accelerate/stop burn.
	Cruising bool `json:"cruising"`
}

// planProfile plans a flight over distance starting at speed v0 with acceleration a
// and deceleration d toward cruise speed desired. When the cruise leg would be
// shorter than margin seconds, the peak speed of an accelerate/stop profile with no
// cruise leg is solved instead.
func planProfile(v0, desired, a, d, distance, margin float64) Profile {
	if a <= 0 || d <= 0 || desired <= 0 {
		return Profile{ETA: math.Inf(1)}
	}
	v0 = math.Max(v0, 0)
	distance = math.Max(distance, 0)

	vc := math.Max(desired, v0)
	p := Profile{
		PeakSpeed:     vc,
		AccelTime:     (vc - v0) / a,
		AccelDistance: (vc*vc - v0*v0) / (2 * a),
		StopTime:      vc / d,
		StopDistance:  vc * vc / (2 * d),
	}
	p.CruiseTime = (distance - p.AccelDistance - p.StopDistance) / vc

	if p.CruiseTime >= margin {
		p.Cruising = true
		p.ETA = p.AccelTime + p.CruiseTime + p.StopTime
		return p
	}

	vmax := math.Sqrt((d*v0*v0 + 2*a*distance*d) / (a + d))
	if vmax < v0 {
		vmax = v0
	}
	p.PeakSpeed = vmax
	p.AccelTime = (vmax - v0) / a
	p.AccelDistance = (vmax*vmax - v0*v0) / (2 * a)
	p.StopTime = vmax / d
	p.StopDistance = vmax * vmax / (2 * d)
	p.CruiseTime = 0
	p.ETA = p.AccelTime + p.StopTime
	return p
}

// timeToStartDecel returns the seconds left before a burn at deceleration d must
// start to stop at the target. It is +Inf when not closing.
func timeToStartDecel(distance, closing, d float64) float64 {
	if closing <= 0 || d <= 0 {
		return math.Inf(1)
	}
	return (distance - stopDistance(closing, d)) / closing
}

func stopDistance(speed, d float64) float64 {
	if d <= 0 {
		return math.Inf(1)
	}
	return speed * speed / (2 * d)
}
