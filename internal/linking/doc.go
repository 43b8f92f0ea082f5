// Package linking resolves per-frame multi-target pose detections into
// temporally consistent identities.
//
// Responsibilities: frame-to-frame Hungarian assignment with birth/death
// modelling, sequential identity drivers (movement-only and
// identity-informed), threshold calibration from sampled matching costs,
// gap stitching, pruning of short, low-confidence and duplicate
// trajectories, long-range tracklet linking by shortest path, and identity
// clustering over an external appearance distance matrix.
// Key types: Params, MatchResult, LinkCosts, Pipeline.
//
// Every stage is sequential over frame or gap order and mutates the
// identity table owned by the caller; only the embedding distance matrix is
// computed concurrently.
package linking
