package object

import "unsafe"

// nodeAddr exposes a node's address as a uintptr for use as a stable
// handle. Go's runtime never moves already-allocated heap objects (no
// compacting collector), so this address stays valid for as long as
// something keeps the node reachable — here, the heap's own intrusive
// chain keeps every node reachable until Close drops the chain.
func nodeAddr(n *node) uintptr {
	return uintptr(unsafe.Pointer(n))
}
