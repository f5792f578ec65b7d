package container

// Instruction is one behavioral rule evaluated against every incoming
// event before it reaches storage and training. The set of variants is
// closed: implementations live in this package only, enforced by the
// unexported marker method.
type Instruction interface {
	// Matches reports whether the rule applies to the event.
	Matches(event InteractionEvent) bool
	instruction()
}

// IgnoreEventType drops every event of the given type: no storage write,
// no training step, no prediction triggered by it.
type IgnoreEventType struct {
	EventType string
}

// Matches reports whether the event carries the ignored type.
func (i IgnoreEventType) Matches(event InteractionEvent) bool {
	return event.Type == i.EventType
}

func (IgnoreEventType) instruction() {}

// instructionSet is an immutable snapshot of the active instruction
// list. The container replaces the whole snapshot atomically; events in
// flight keep evaluating the snapshot they were dispatched with.
type instructionSet struct {
	list []Instruction
}

var emptyInstructions = &instructionSet{}

func newInstructionSet(list []Instruction) *instructionSet {
	if len(list) == 0 {
		return emptyInstructions
	}
	cp := make([]Instruction, len(list))
	copy(cp, list)
	return &instructionSet{list: cp}
}

// Ignores reports whether any rule in the snapshot discards the event.
func (s *instructionSet) Ignores(event InteractionEvent) bool {
	for _, in := range s.list {
		if in.Matches(event) {
			return true
		}
	}
	return false
}

// List returns a copy safe to hand to engine implementations.
func (s *instructionSet) List() []Instruction {
	if len(s.list) == 0 {
		return nil
	}
	cp := make([]Instruction, len(s.list))
	copy(cp, s.list)
	return cp
}
