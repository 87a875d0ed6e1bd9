package health

import "time"

// Profile scales per-service timeouts for the deployment environment.
// Unknown names resolve to the standard profile.
type Profile struct {
	Name   string
	Factor float64
	Cap    time.Duration
}

var profiles = map[string]Profile{
	"fast":     {Name: "fast", Factor: 0.5, Cap: 60 * time.Second},
	"standard": {Name: "standard", Factor: 1.0, Cap: 120 * time.Second},
	"slow":     {Name: "slow", Factor: 2.0, Cap: 300 * time.Second},
}

// ProfileByName resolves a profile, defaulting to standard.
func ProfileByName(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles["standard"]
}

// EffectiveTimeout scales a base timeout by the profile factor and
// clamps it to the profile cap.
func (p Profile) EffectiveTimeout(base time.Duration) time.Duration {
	scaled := time.Duration(float64(base) * p.Factor)
	if scaled > p.Cap {
		return p.Cap
	}
	return scaled
}
