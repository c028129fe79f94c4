// Package screenrec records a display together with system or microphone
// audio into a compressed container file in real time.
//
// Key pieces include:
//   - FrameSource/AudioSource producers (screen poller, miniaudio device, synthetic patterns)
//   - Clock for a shared, zero-based timeline across both producers
//   - RingBuffer staging queues (drop-oldest for video, backpressure for audio)
//   - FrameProcessor for letterboxing into a fixed I420 output geometry
//   - Session, the asynchronous encode state machine, and its OutputTarget sinks
//   - Recorder, which wires everything together
//
// # Architecture
//
//	Video: FrameSource -> Clock -> FramePacer -> FrameProcessor -> RingBuffer (drop-oldest) ┐
//	                                                                                          ├-> Session loop -> encodeWorker -> OutputTarget
//	Audio: AudioSource -> Clock ------------------------------------> RingBuffer (block) ----┘
//
// The consumption loop merges both queues by timestamp (video first on ties)
// and never holds more than Config.MaxInFlight submissions in the encoder.
//
// # Native Libraries
//
// VP8/VP9 and Opus encoders load the libmedia_vpx and libstream_opus shims at
// runtime through purego. With CGO enabled, Opus links libopus directly via
// gopkg.in/hraban/opus.v2. Set SCREENREC_LIB_PATH to the directory holding the
// shims.
//
// # Build Tags
//
// Optional tags disable features:
//   - novpx, noopus: disable specific codecs
//
// # Containers
//
// WebM (VP8/VP9 + Opus) is the default output. The "ivf+ogg" container writes
// the two elementary streams side by side instead.
package screenrec
