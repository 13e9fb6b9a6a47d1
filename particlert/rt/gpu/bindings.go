package gpu

import "fmt"

// BindingPair is an immutable (read, write) association with its prebuilt bind group.
type BindingPair struct {
	Read  Buffer
	Write Buffer
	Group BindGroup
}

// ResolveBindings builds the two pairs (A->B) and (B->A) once. Pair k reads
// buffer k and writes buffer 1-k, so pair tick%2 always reads what the previous
// tick wrote.
func ResolveBindings(backend Backend, store *ParticleStore, params Buffer) ([2]BindingPair, error) {
	var pairs [2]BindingPair
	names := [2]string{"A", "B"}
	for k := 0; k < 2; k++ {
		read, write := store.Buffers[k], store.Buffers[1-k]
		group, err := backend.CreateBindGroup(fmt.Sprintf("Particles %s->%s", names[k], names[1-k]), params, read, write)
		if err != nil {
			return pairs, fmt.Errorf("failed to create bind group %d: %w", k, err)
		}
		pairs[k] = BindingPair{Read: read, Write: write, Group: group}
	}
	return pairs, nil
}
