package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Container holds named components and hands them out by name. It does no
// construction itself; builders in the registry package produce components
// and register them here.
type Container struct {
	mu         sync.RWMutex
	components map[string]Component
}

func NewContainer() *Container {
	return &Container{
		components: make(map[string]Component),
	}
}

func (c *Container) Register(name string, component Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.components[name]; taken {
		return fmt.Errorf("component %s already registered", name)
	}
	c.components[name] = component
	return nil
}

func (c *Container) Resolve(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	component, ok := c.components[name]
	if !ok {
		return nil, fmt.Errorf("component %s not found", name)
	}
	return component, nil
}

// ListRegistered returns a snapshot copy of the component table.
func (c *Container) ListRegistered() map[string]Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]Component, len(c.components))
	for name, comp := range c.components {
		snapshot[name] = comp
	}
	return snapshot
}

// SortComponentsByDependencies returns components in start order (DFS
// topological sort over declared dependencies). Component names are walked
// alphabetically so the order is stable run to run.
func (c *Container) SortComponentsByDependencies() ([]Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	done := make(map[string]bool)
	onPath := make(map[string]bool)
	order := make([]Component, 0, len(c.components))

	var walk func(string) error
	walk = func(name string) error {
		if onPath[name] {
			return fmt.Errorf("circular dependency detected involving component %s", name)
		}
		if done[name] {
			return nil
		}
		component, ok := c.components[name]
		if !ok {
			return fmt.Errorf("component %s not found", name)
		}

		onPath[name] = true
		for _, dep := range component.Dependencies() {
			if err := walk(dep); err != nil {
				return err
			}
		}
		onPath[name] = false
		done[name] = true
		order = append(order, component)
		return nil
	}

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := walk(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Replace swaps a registered, not yet started component. Test hook.
func (c *Container) Replace(name string, component Component) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.components[name]
	if !ok {
		return fmt.Errorf("component %s not registered", name)
	}
	if current.IsActive() {
		return fmt.Errorf("component %s is active; cannot replace", name)
	}
	c.components[name] = component
	return nil
}

// ValidateDependencies checks that every declared dependency is registered
// and that the graph is acyclic. Returns the start order without starting.
func (c *Container) ValidateDependencies() ([]Component, error) {
	c.mu.RLock()
	missing := make(map[string][]string)
	for name, comp := range c.components {
		for _, dep := range comp.Dependencies() {
			if _, ok := c.components[dep]; !ok {
				missing[name] = append(missing[name], dep)
			}
		}
	}
	c.mu.RUnlock()

	if len(missing) > 0 {
		parts := make([]string, 0, len(missing))
		for name, deps := range missing {
			parts = append(parts, fmt.Sprintf("%s -> [%s]", name, strings.Join(deps, ",")))
		}
		sort.Strings(parts)
		return nil, fmt.Errorf("missing component dependencies: %s", strings.Join(parts, "; "))
	}
	return c.SortComponentsByDependencies()
}
