// Package face enrolls face embeddings and recognizes faces in live frames.
//
// Embedding extraction is an external capability behind Extractor: given an
// image, it returns zero or more detections, each an embedding plus a
// bounding box. The matcher owns everything after that point.
//
// # Matching
//
// Verify computes the distance from a probe embedding to every enrolled
// embedding, picks the smallest (the first-inserted embedding wins ties) and
// declares a match only if that best distance is within tolerance. An empty
// store never matches.
//
// # Frame budget
//
// Live verification consumes frames one at a time. FrameBudget bounds the
// number of frames and, optionally, the wall-clock time spent.
package face
