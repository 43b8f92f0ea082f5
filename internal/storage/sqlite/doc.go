// Package sqlite persists detection sequences and linking runs in a SQLite
// database.
//
// The schema is owned by the embedded migrations; Open applies them before
// returning. Videos are stored frame by frame with one row per observed
// detection. A link run records its parameters, statistics and the frame
// range of every output identity.
package sqlite
