// Package pose owns the detection data model consumed by the linker.
//
// Responsibilities: landmark layout (Shape), per-slot detections (Pose),
// the read-only Source contract that the linker consumes, and the in-memory
// Sequence which stores ragged per-target pose ranges with confidences.
// Sequence also carries the small editing operations the pipeline needs
// between stages: identity application, duplicate suppression and short-gap
// interpolation.
//
// Dependency rule: pose may depend on tracklet, never on linking.
package pose
