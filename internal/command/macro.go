package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/manav03panchal/cmdstack/internal/errors"
	"github.com/manav03panchal/cmdstack/internal/logging"
)

// CreateMacro compresses history entries into a compound command registered
// under name. Entries are replayed in history order, batches are flattened and
// failed instances are skipped. An empty name picks the first free "MacroN".
//
// An argument acting on an object returned by an earlier step becomes a
// back-reference to that step; other arguments naming an object are bound to
// the replay context.
func (m *Manager) CreateMacro(ctx context.Context, instances []*Instance, name string) (*CompoundCommand, error) {
	if len(instances) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArguments, "no instances selected")
	}

	history := m.History(ctx)
	positions := make(map[*Instance]int, len(history))
	for n, inst := range history {
		positions[inst] = n
	}
	selected := make([]*Instance, 0, len(instances))
	seen := make(map[*Instance]bool, len(instances))
	for _, inst := range instances {
		if _, ok := positions[inst]; !ok {
			return nil, errors.Wrapf(errors.ErrNotFound, "instance %s is not in the history", inst.ID())
		}
		if !seen[inst] {
			seen[inst] = true
			selected = append(selected, inst)
		}
	}
	sort.Slice(selected, func(a, b int) bool {
		return positions[selected[a]] < positions[selected[b]]
	})

	var flat []*Instance
	for _, inst := range selected {
		flat = flatten(flat, inst)
	}
	if len(flat) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArguments, "selection holds no successful commands")
	}

	steps := make([]Step, 0, len(flat))
	produced := make(map[ObjectID]int)
	for n, inst := range flat {
		steps = append(steps, Step{CommandID: inst.CommandID(), Argument: bindArgument(inst, n, produced)})
		if id, ok := asObjectID(inst.Result()); ok {
			produced[id] = n
		}
	}

	macro, err := m.RegisterMacro(name, steps)
	if err != nil {
		return nil, err
	}
	m.logger.Info("macro created", logging.KeyCommand, macro.ID(), logging.KeyCount, len(steps))
	return macro, nil
}

func flatten(out []*Instance, inst *Instance) []*Instance {
	if !inst.Succeeded() {
		return out
	}
	if inst.IsBatch() {
		for _, c := range inst.Children() {
			out = flatten(out, c)
		}
		return out
	}
	return append(out, inst)
}

func bindArgument(inst *Instance, step int, produced map[ObjectID]int) Argument {
	args := inst.Arguments()
	if _, ok := args.(Retargetable); !ok || inst.ContextObject() == "" {
		return Literal(args)
	}
	if from, ok := produced[inst.ContextObject()]; ok {
		return ResultOf(from-step, args)
	}
	return ContextBound(args)
}

// RegisterMacro registers a compound command built from steps. It is used by
// CreateMacro and when loading persisted macros.
func (m *Manager) RegisterMacro(name string, steps []Step) (*CompoundCommand, error) {
	if len(steps) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArguments, "macro needs at least one step")
	}
	for n, s := range steps {
		if s.Argument.Kind == BindResult && (s.Argument.Offset >= 0 || n+s.Argument.Offset < 0) {
			return nil, errors.Wrapf(errors.ErrOutOfRange, "step %d references offset %d", n, s.Argument.Offset)
		}
	}

	m.registryMu.Lock()
	if name == "" {
		name = m.nextMacroName()
	}
	if _, exists := m.registry[name]; exists {
		m.registryMu.Unlock()
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "command %q", name)
	}
	macro := NewCompoundCommand(m, name, steps)
	m.registry[name] = macro
	m.macros = append(m.macros, macro)
	m.registryMu.Unlock()

	m.events.publish(Event{Kind: EventMacrosChanged})
	return macro, nil
}

// nextMacroName returns the first "MacroN" not taken. Callers hold registryMu.
func (m *Manager) nextMacroName() string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("Macro%d", n)
		if _, taken := m.registry[name]; !taken {
			return name
		}
	}
}

// DeleteMacro deregisters a macro. Instances already in the history keep
// working since they hold the command itself.
func (m *Manager) DeleteMacro(name string) error {
	m.registryMu.Lock()
	pos := -1
	for n, macro := range m.macros {
		if macro.ID() == name {
			pos = n
			break
		}
	}
	if pos < 0 {
		m.registryMu.Unlock()
		return errors.Wrapf(errors.ErrNotFound, "macro %q", name)
	}
	m.macros = append(m.macros[:pos], m.macros[pos+1:]...)
	delete(m.registry, name)
	m.registryMu.Unlock()

	m.logger.Info("macro deleted", logging.KeyCommand, name)
	m.events.publish(Event{Kind: EventMacrosChanged})
	return nil
}

// Macros returns the macros in creation order.
func (m *Manager) Macros() []*CompoundCommand {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	out := make([]*CompoundCommand, len(m.macros))
	copy(out, m.macros)
	return out
}

// Macro looks up a macro by name.
func (m *Manager) Macro(name string) (*CompoundCommand, bool) {
	m.registryMu.RLock()
	defer m.registryMu.RUnlock()
	for _, macro := range m.macros {
		if macro.ID() == name {
			return macro, true
		}
	}
	return nil, false
}

// StoredStep is the persisted form of a macro step.
type StoredStep struct {
	CommandID string      `json:"command"`
	Binding   BindingKind `json:"binding"`
	Offset    int         `json:"offset,omitempty"`
	Value     Value       `json:"value"`
}

// StoredMacro is the persisted form of a macro.
type StoredMacro struct {
	Name  string       `json:"name"`
	Steps []StoredStep `json:"steps"`
}

// Store encodes the macro for persistence.
func (c *CompoundCommand) Store() (StoredMacro, error) {
	steps := c.Steps()
	out := StoredMacro{Name: c.id, Steps: make([]StoredStep, 0, len(steps))}
	for _, s := range steps {
		v, err := EncodeValue(s.Argument.Value)
		if err != nil {
			return StoredMacro{}, errors.Wrapf(err, "macro %s step %s", c.id, s.CommandID)
		}
		out.Steps = append(out.Steps, StoredStep{
			CommandID: s.CommandID,
			Binding:   s.Argument.Kind,
			Offset:    s.Argument.Offset,
			Value:     v,
		})
	}
	return out, nil
}

// LoadMacro decodes and registers a persisted macro.
func (m *Manager) LoadMacro(stored StoredMacro) (*CompoundCommand, error) {
	steps := make([]Step, 0, len(stored.Steps))
	for _, s := range stored.Steps {
		v, err := s.Value.Decode()
		if err != nil {
			return nil, errors.Wrapf(err, "macro %s step %s", stored.Name, s.CommandID)
		}
		steps = append(steps, Step{
			CommandID: s.CommandID,
			Argument:  Argument{Kind: s.Binding, Value: v, Offset: s.Offset},
		})
	}
	return m.RegisterMacro(stored.Name, steps)
}
