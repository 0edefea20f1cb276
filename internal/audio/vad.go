package audio

// VAD is an energy gate with a hangover: one loud buffer opens it, and it
// closes only after more than hangover consecutive quiet buffers.
type VAD struct {
	threshold float64
	hangover  int
	speaking  bool
	silent    int
}

func NewVAD(threshold float64, hangover int) *VAD {
	if hangover < 1 {
		hangover = 1
	}
	return &VAD{threshold: threshold, hangover: hangover}
}

// Update feeds one buffer's RMS and reports the speaking flag and whether it
// flipped on this buffer.
func (v *VAD) Update(rms float64) (speaking bool, changed bool) {
	if rms > v.threshold {
		v.silent = 0
		if !v.speaking {
			v.speaking = true
			return true, true
		}
		return true, false
	}
	if !v.speaking {
		return false, false
	}
	v.silent++
	if v.silent > v.hangover {
		v.speaking = false
		v.silent = 0
		return false, true
	}
	return true, false
}

func (v *VAD) Speaking() bool {
	return v.speaking
}
