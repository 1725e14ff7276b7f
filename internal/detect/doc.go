// Package detect finds the game piece in a frame by color.
//
// The detector thresholds the frame in HSV space, cleans the binary mask
// with a morphological opening and closing, and reports the bounding box of
// the largest connected region. Pixel conventions follow OpenCV's 8-bit HSV
// (hue 0..179, saturation and value 0..255) so thresholds tuned with OpenCV
// tools carry over unchanged.
package detect
