// Package capture is the frame source stage of the perception pipeline.
//
// A Source hands out the most recent camera frame on demand. Sources never
// queue: a caller that is slower than the camera simply sees fewer frames.
// Every Frame is stamped at the moment its bytes arrived from the device, and
// that timestamp travels with the detection and estimate derived from it.
package capture
