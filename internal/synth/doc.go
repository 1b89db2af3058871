// Package synth manufactures the numeric artifacts of the MedVision SSL demo.
//
// No model is ever trained. Loss curves, evaluation scores, embedding scatters,
// volume slice statistics and label-efficiency curves are produced by closed
// analytical profiles plus bounded, seeded noise, so that re-reading the same
// experiment or slice yields the same picture.
//
// Main Types:
//   - Catalogue: immutable generator configuration (curve profiles, clusters, checkpoints)
//   - Generator: the entry point exposing every generator operation
//
// Usage:
//
//	gen, err := synth.New(synth.DefaultCatalogue())
//	if err != nil {
//	    return err
//	}
//	records, err := gen.BuildFull(exp)  // appends every remaining epoch to exp
//	eval, err := gen.Derive(exp)        // exp.Status must be completed
//
// The lab orchestrator never holds a whole history in memory: it asks Next for one
// record at a time and persists it through the store. Extend and BuildFull serve
// in-memory callers such as the curve command.
//
// Every Generator method is safe for concurrent use. Methods that take an
// *models.Experiment mutate only that experiment.
package synth
