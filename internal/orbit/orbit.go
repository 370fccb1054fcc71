// Package orbit predicts contact windows between the simulated satellite and
// a ground station using SGP4.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi

	tleLineLength = 69
)

// ErrInvalidTLE is returned for element sets SGP4 cannot use.
var ErrInvalidTLE = errors.New("invalid TLE")

// GroundStation is an observer on the Earth's surface.
type GroundStation struct {
	ID           string
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// Options bound a pass search.
type Options struct {
	MinElevationDeg float64
	Window          time.Duration
	Step            time.Duration
}

// Pass is one contact window above the minimum elevation.
type Pass struct {
	AOS              time.Time
	LOS              time.Time
	MaxElevationTime time.Time
	MaxElevationDeg  float64
}

// LookAngles locate the satellite as seen from the ground station.
type LookAngles struct {
	AzimuthDeg   float64
	ElevationDeg float64
	RangeKm      float64
}

// Predictor propagates one TLE for one ground station. It holds no mutable
// state after construction and is safe for concurrent use.
type Predictor struct {
	line1, line2 string
	epoch        time.Time
	sat          satellite.Satellite
	gs           GroundStation
	opts         Options
}

// NewPredictor parses the element set and returns a predictor for gs.
func NewPredictor(line1, line2 string, gs GroundStation, opts Options) (*Predictor, error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if err := validateTLE(line1, line2); err != nil {
		return nil, err
	}
	if opts.Step <= 0 || opts.Window < opts.Step {
		return nil, fmt.Errorf("search step %v must be positive and within window %v", opts.Step, opts.Window)
	}

	epoch, err := parseEpoch(line1)
	if err != nil {
		return nil, err
	}

	p := &Predictor{
		line1: line1,
		line2: line2,
		epoch: epoch,
		sat:   satellite.TLEToSat(line1, line2, satellite.GravityWGS72),
		gs:    gs,
		opts:  opts,
	}
	if la := p.LookAngles(epoch); math.IsNaN(la.ElevationDeg) || la.RangeKm <= 0 {
		return nil, fmt.Errorf("%w: propagation failed at epoch", ErrInvalidTLE)
	}
	return p, nil
}

// Epoch is the reference time of the element set.
func (p *Predictor) Epoch() time.Time { return p.epoch }

// TLE returns the element set the predictor was built from.
func (p *Predictor) TLE() (string, string) { return p.line1, p.line2 }

func (p *Predictor) GroundStation() GroundStation { return p.gs }

// LookAngles propagates the satellite to t.
func (p *Predictor) LookAngles(t time.Time) LookAngles {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	obs := satellite.LatLong{
		Latitude:  p.gs.LatitudeDeg * deg2rad,
		Longitude: p.gs.LongitudeDeg * deg2rad,
	}
	la := satellite.ECIToLookAngles(posECI, obs, p.gs.AltitudeKm, jd)
	return LookAngles{
		AzimuthDeg:   la.Az * rad2deg,
		ElevationDeg: la.El * rad2deg,
		RangeKm:      la.Rg,
	}
}

// Passes returns contact windows that overlap [from, from+Window], in time
// order. A pass already in progress at from starts at from; one still in
// progress at the end of the window ends there. Instants where propagation
// fails count as below the mask.
func (p *Predictor) Passes(from time.Time) []Pass {
	from = from.UTC().Truncate(time.Second)
	end := from.Add(p.opts.Window)
	minEl := p.opts.MinElevationDeg

	var (
		passes []Pass
		cur    *Pass
		prevT  = from
	)
	for t := from; !t.After(end); t = t.Add(p.opts.Step) {
		el := p.LookAngles(t).ElevationDeg
		visible := el >= minEl

		switch {
		case visible && cur == nil:
			aos := t
			if t.After(from) {
				aos = p.crossing(prevT, t, true)
			}
			cur = &Pass{AOS: aos, MaxElevationTime: t, MaxElevationDeg: el}
		case visible && el > cur.MaxElevationDeg:
			cur.MaxElevationTime, cur.MaxElevationDeg = t, el
		case !visible && cur != nil:
			cur.LOS = p.crossing(prevT, t, false)
			passes = append(passes, p.refineMax(*cur))
			cur = nil
		}
		prevT = t
	}
	if cur != nil {
		cur.LOS = prevT
		passes = append(passes, p.refineMax(*cur))
	}
	return passes
}

// crossing bisects (lo, hi] to one-second precision for the instant the
// satellite rises above (rising) or sets below the minimum elevation.
func (p *Predictor) crossing(lo, hi time.Time, rising bool) time.Time {
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
		if !mid.After(lo) {
			break
		}
		above := p.LookAngles(mid).ElevationDeg >= p.opts.MinElevationDeg
		if above == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	if rising {
		return hi
	}
	return lo
}

// refineMax scans a second at a time around the coarse culmination.
func (p *Predictor) refineMax(pass Pass) Pass {
	lo := pass.MaxElevationTime.Add(-p.opts.Step)
	if lo.Before(pass.AOS) {
		lo = pass.AOS
	}
	hi := pass.MaxElevationTime.Add(p.opts.Step)
	if hi.After(pass.LOS) {
		hi = pass.LOS
	}
	for t := lo; !t.After(hi); t = t.Add(time.Second) {
		if el := p.LookAngles(t).ElevationDeg; el > pass.MaxElevationDeg {
			pass.MaxElevationTime, pass.MaxElevationDeg = t, el
		}
	}
	return pass
}

func validateTLE(line1, line2 string) error {
	switch {
	case len(line1) < tleLineLength || len(line2) < tleLineLength:
		return fmt.Errorf("%w: lines must be %d characters", ErrInvalidTLE, tleLineLength)
	case !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 "):
		return fmt.Errorf("%w: lines must start with 1 and 2", ErrInvalidTLE)
	case strings.TrimSpace(line1[2:7]) != strings.TrimSpace(line2[2:7]):
		return fmt.Errorf("%w: catalog numbers differ", ErrInvalidTLE)
	}
	return nil
}

// parseEpoch reads the two-digit year and fractional day of year from line 1.
func parseEpoch(line1 string) (time.Time, error) {
	yy, err := strconv.Atoi(strings.TrimSpace(line1[18:20]))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year: %v", ErrInvalidTLE, err)
	}
	day, err := strconv.ParseFloat(strings.TrimSpace(line1[20:32]), 64)
	if err != nil || day < 1 || day >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrInvalidTLE, line1[20:32])
	}
	year := 1900 + yy
	if yy < 57 {
		year = 2000 + yy
	}
	offset := time.Duration((day - 1) * float64(24*time.Hour))
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).Add(offset), nil
}
