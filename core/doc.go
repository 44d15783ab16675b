// Package core defines the foundational abstractions of TrainMesh: the
// Nothing sentinel, observable attribute stores, scoped attribute assignment,
// the shared execution Context threaded through every handler invocation, the
// Handler/Wrapper composite contracts and the collaborator interfaces the
// engine consumes (model state, optimizer, loss, metrics, launch hooks,
// collective communication).
//
// The package deliberately contains no numeric code: tensors, autograd and
// model architectures are external collaborators reached through the
// interfaces declared here.
package core
