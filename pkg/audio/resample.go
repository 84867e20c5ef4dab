package audio

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
)

// Resampler converts blocks of audio at an arbitrary source rate to 48 kHz by
// spectral resizing: forward FFT of one 10 ms input block, spectrum truncated
// or zero-padded to the output bin count, inverse FFT. Each Process call
// consumes exactly RequiredInput frames per channel and produces exactly
// ResampleOutputFrameSize output frames, so two calls fill one 20 ms frame.
type Resampler struct {
	srcRate  int
	channels int
	inLen    int

	in  []float64
	out []complex128
}

// NewResampler creates a resampler for the given source format. The source
// rate must be a multiple of 100 so 10 ms blocks contain a whole number of
// frames.
func NewResampler(srcRate, channels int) (*Resampler, error) {
	if srcRate <= 0 || srcRate%100 != 0 {
		return nil, fmt.Errorf("unsupported sample rate %d: not a multiple of 100", srcRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	return &Resampler{
		srcRate:  srcRate,
		channels: channels,
		inLen:    srcRate / 100,
		in:       make([]float64, srcRate/100),
		out:      make([]complex128, ResampleOutputFrameSize),
	}, nil
}

// RequiredInput returns the number of input frames per channel consumed by
// one Process call.
func (r *Resampler) RequiredInput() int { return r.inLen }

// Channels returns the channel count the resampler was built for.
func (r *Resampler) Channels() int { return r.channels }

// Process resamples one block. src must hold at least RequiredInput frames in
// each of its channels planes starting at srcOff; dst receives
// ResampleOutputFrameSize frames per plane starting at dstOff.
func (r *Resampler) Process(src [][]float32, srcOff int, dst [][]float32, dstOff int) {
	for ch := 0; ch < r.channels; ch++ {
		for i := 0; i < r.inLen; i++ {
			r.in[i] = float64(src[ch][srcOff+i])
		}
		spectrum := fft.FFTReal(r.in)
		resizeSpectrum(spectrum, r.out)
		wave := fft.IFFT(r.out)

		scale := float32(ResampleOutputFrameSize) / float32(r.inLen)
		plane := dst[ch]
		for i, c := range wave {
			plane[dstOff+i] = float32(real(c)) * scale
		}
	}
}

// resizeSpectrum maps an N-bin spectrum onto an M-bin one, preserving the
// conjugate symmetry of a real signal. Downsampling drops the bins above the
// output Nyquist; upsampling zero-pads the middle.
func resizeSpectrum(src []complex128, dst []complex128) {
	n, m := len(src), len(dst)
	for i := range dst {
		dst[i] = 0
	}
	half := n
	if m < half {
		half = m
	}
	half /= 2
	dst[0] = src[0]
	for k := 1; k < half; k++ {
		dst[k] = src[k]
		dst[m-k] = src[n-k]
	}
}
