// Package dedup groups near-duplicate images.
//
// A pair of images is accepted only when four signals agree, checked in
// order of cost so that cheap rejections short-circuit the expensive ones:
//
//  1. the Hamming distance of their perceptual hashes is within PHashThreshold
//  2. the cosine similarity of their semantic embeddings exceeds SemanticThreshold
//  3. the cosine similarity of their visual-feature embeddings exceeds VisualThreshold
//  4. the similarity ratio of the text extracted from both meets TextThreshold
//
// The Engine turns accepted pairs into disjoint groups. The default anchor
// strategy walks the images in order and matches each unvisited image against
// all images still unvisited after it; an image that joins a group is never
// compared again. The components strategy evaluates every pair and groups the
// connected components of the accepted-pair graph instead.
//
// Comparisons for one anchor run in parallel on a bounded pool; the visited
// set and the group list are only touched between anchors.
package dedup
