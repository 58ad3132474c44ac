//go:build js && wasm

package main

import (
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorConfigMismatch
)

var (
	extractor  *fingerprint.Extractor
	segmenter  segment.Segmenter
	featureCfg = fingerprint.DefaultConfig()
)

// generateFingerprint(audioArray, sampleRate, channels) computes the
// whole-file and per-segment perceptual fingerprints and content digests.
// Returns: {error: number, data: object | string}
func generateFingerprint(this js.Value, args []js.Value) any {
	buf, errResp := readAudioArgs(args)
	if !errResp.IsUndefined() {
		return errResp
	}

	whole, _ := segment.Whole(buf)
	segs := append([]models.Segment{whole}, segmenter.Split(buf)...)

	out := make([]any, 0, len(segs))
	for _, seg := range segs {
		fp, err := fingerprintSegment(seg)
		if err != nil {
			return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Segment %d: %v", seg.Index, err))
		}
		out = append(out, fp)
	}

	data := js.Global().Get("Object").New()
	data.Set("whole", out[0])
	data.Set("segments", js.ValueOf(out[1:]))
	data.Set("config", configObject(featureCfg))

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", data)
	return result
}

// compareFingerprints(vectorA, vectorB) returns the cosine similarity of two
// fingerprint vectors produced by this module.
func compareFingerprints(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 2 arguments: vectorA, vectorB")
	}
	a, err := floatArray(args[0])
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, "vectorA: "+err.Error())
	}
	b, err := floatArray(args[1])
	if err != nil {
		return makeErrorResponse(ErrorInvalidArgs, "vectorB: "+err.Error())
	}

	sim, err := fingerprint.Similarity(
		models.PerceptualFingerprint{Values: a, Config: featureCfg},
		models.PerceptualFingerprint{Values: b, Config: featureCfg},
	)
	if err != nil {
		return makeErrorResponse(ErrorConfigMismatch, err.Error())
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", sim)
	return result
}

func readAudioArgs(args []js.Value) (models.AudioBuffer, js.Value) {
	none := models.AudioBuffer{}
	if len(args) < 3 {
		return none, makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}
	if args[1].Type() != js.TypeNumber || args[2].Type() != js.TypeNumber {
		return none, makeErrorResponse(ErrorInvalidArgs, "sampleRate and channels must be numbers")
	}

	sampleRate := args[1].Int()
	channels := args[2].Int()
	if sampleRate <= 0 {
		return none, makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 || channels > 2 {
		return none, makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Channels must be 1 (mono) or 2 (stereo), got: %d", channels))
	}

	samples, err := floatArray(args[0])
	if err != nil {
		return none, makeErrorResponse(ErrorInvalidArgs, "audioArray: "+err.Error())
	}
	if len(samples) == 0 {
		return none, makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}
	if channels == 2 {
		samples = stereoToMono(samples)
	}
	return models.AudioBuffer{Samples: samples, SampleRate: sampleRate}, js.Value{}
}

func floatArray(v js.Value) ([]float64, error) {
	if v.Type() != js.TypeObject {
		return nil, fmt.Errorf("must be an Array or Float64Array")
	}
	n := v.Length()
	out := make([]float64, n)
	for i := range n {
		val := v.Index(i)
		if val.Type() != js.TypeNumber {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = val.Float()
	}
	return out, nil
}

func fingerprintSegment(seg models.Segment) (js.Value, error) {
	samples := seg.Samples
	if seg.SampleRate != featureCfg.SampleRate {
		var err error
		samples, err = audio.Resample(seg.Samples, seg.SampleRate, featureCfg.SampleRate)
		if err != nil {
			return js.Value{}, err
		}
	}
	fp, err := extractor.Fingerprint(samples, featureCfg.SampleRate)
	if err != nil {
		return js.Value{}, err
	}
	digest := fingerprint.Digest(seg.Samples)

	vector := make([]any, len(fp.Values))
	for i, x := range fp.Values {
		vector[i] = x
	}

	obj := js.Global().Get("Object").New()
	obj.Set("index", seg.Index)
	obj.Set("start", seg.StartTime)
	obj.Set("end", seg.EndTime)
	obj.Set("sha256", digest.SHA256)
	obj.Set("xxhash64", digest.XXHash64)
	obj.Set("vector", js.ValueOf(vector))
	return obj, nil
}

func configObject(cfg models.FeatureConfig) js.Value {
	return js.ValueOf(map[string]any{
		"sampleRate": cfg.SampleRate,
		"nFFT":       cfg.NFFT,
		"hopLength":  cfg.HopLength,
		"nMels":      cfg.NMels,
		"nMFCC":      cfg.NMFCC,
		"nBands":     cfg.NBands,
	})
}

func stereoToMono(stereo []float64) []float64 {
	if len(stereo)%2 != 0 {
		stereo = stereo[:len(stereo)-1]
	}

	mono := make([]float64, len(stereo)/2)
	for i := range mono {
		mono[i] = (stereo[i*2] + stereo[i*2+1]) / 2.0
	}
	return mono
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")

	var err error
	extractor, err = fingerprint.NewExtractor(featureCfg)
	if err == nil {
		segmenter, err = segment.New(segment.DefaultPerceptualDuration, segment.DefaultMinFillRatio)
	}
	if err != nil {
		if !console.IsUndefined() {
			console.Call("error", "❌ AcousticVerify WASM init failed: "+err.Error())
		}
		return
	}

	js.Global().Set("generateFingerprint", js.FuncOf(generateFingerprint))
	js.Global().Set("compareFingerprints", js.FuncOf(compareFingerprints))

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		event := js.Global().Get("CustomEvent").New("wasmReady", js.Global().Get("Object").New())
		window.Call("dispatchEvent", event)
	}
	if !console.IsUndefined() {
		console.Call("log", "✅ AcousticVerify WASM module loaded and ready")
	}

	select {}
}
