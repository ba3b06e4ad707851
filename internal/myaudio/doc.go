// Package myaudio decodes uploaded recordings and prepares them for the
// species detectors.
//
// Uploads are decoded from WAV (go-audio/wav), FLAC (tphakala/flac) or, when an
// ffmpeg binary is available, anything ffmpeg understands. Decoded clips are
// forced to a fixed duration by padding with trailing silence or truncating
// the tail, and can be written back out as WAV for file-based detectors.
package myaudio
