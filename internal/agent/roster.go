// Package agent defines the fixed roster of specialized agent roles and the
// tool capabilities each role may exercise.
//
// Roles are plain string-typed identifiers, not a type hierarchy. What a role
// is allowed to do is resolved by capability lookup, so adding behavior to a
// role means editing a table, not introducing a subtype.
//
// Key types:
//   - [Role] - One of the 13 roster identifiers
//   - [Capability] - A tool class a role may invoke
//
// Use [Role.IsValid] to check membership before routing control to a role,
// and [Role.Can] to check tool permissions.
package agent

// Role identifies one member of the fixed agent roster.
type Role string

// The complete roster. These are the only valid routing targets; anything
// else is rejected by [Role.IsValid].
const (
	Founder        Role = "Founder"
	ProductManager Role = "ProductManager"
	UXResearcher   Role = "UXResearcher"
	Designer       Role = "Designer"
	Accessibility  Role = "Accessibility"
	Planner        Role = "Planner"
	Security       Role = "Security"
	Builder        Role = "Builder"
	Reviewer       Role = "Reviewer"
	Tester         Role = "Tester"
	TechWriter     Role = "TechWriter"
	SRE            Role = "SRE"
	DataAnalyst    Role = "DataAnalyst"
)

// Roster lists every role in a stable order.
var Roster = []Role{
	Founder,
	ProductManager,
	UXResearcher,
	Designer,
	Accessibility,
	Planner,
	Security,
	Builder,
	Reviewer,
	Tester,
	TechWriter,
	SRE,
	DataAnalyst,
}

// Capability is a class of tool a role may invoke during a step.
type Capability string

const (
	// CapFileRead allows reading project files.
	CapFileRead Capability = "file_read"

	// CapFileWrite allows creating and editing project files.
	CapFileWrite Capability = "file_write"

	// CapShell allows running shell commands.
	CapShell Capability = "shell"

	// CapDatabase allows querying project databases.
	CapDatabase Capability = "database"

	// CapHandoff allows redirecting control to another roster role.
	CapHandoff Capability = "handoff"

	// CapDelegate allows fanning out sub-tasks to worker roles.
	CapDelegate Capability = "delegate"
)

// capabilities maps each role to the tools it may invoke. Roles absent from
// a capability's list simply cannot use that tool; there is no inheritance.
var capabilities = map[Role][]Capability{
	Founder:        {CapHandoff},
	ProductManager: {CapFileRead, CapHandoff},
	UXResearcher:   {CapFileRead},
	Designer:       {CapFileRead, CapFileWrite},
	Accessibility:  {CapFileRead},
	Planner:        {CapFileRead, CapHandoff, CapDelegate},
	Security:       {CapFileRead, CapShell},
	Builder:        {CapFileRead, CapFileWrite, CapShell, CapDatabase},
	Reviewer:       {CapFileRead, CapShell, CapHandoff},
	Tester:         {CapFileRead, CapShell},
	TechWriter:     {CapFileRead, CapFileWrite},
	SRE:            {CapFileRead, CapShell, CapDatabase},
	DataAnalyst:    {CapFileRead, CapDatabase},
}

// workerRoles is the closed set of roles that may receive delegated sub-tasks.
var workerRoles = map[Role]bool{
	Builder:    true,
	Designer:   true,
	Tester:     true,
	Security:   true,
	TechWriter: true,
}

// IsValid reports whether r is one of the 13 roster roles.
func (r Role) IsValid() bool {
	_, ok := capabilities[r]
	return ok
}

// Capabilities returns the tool capabilities granted to r. The returned slice
// is a copy; callers may not mutate the roster tables through it.
func (r Role) Capabilities() []Capability {
	caps := capabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Can reports whether r holds the given capability.
func (r Role) Can(c Capability) bool {
	for _, have := range capabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// IsWorker reports whether r may be the target of a delegated sub-task.
// Only Builder, Designer, Tester, Security, and TechWriter accept sub-tasks.
func (r Role) IsWorker() bool {
	return workerRoles[r]
}

// Workers returns the roles eligible for delegation, in roster order.
func Workers() []Role {
	var out []Role
	for _, r := range Roster {
		if workerRoles[r] {
			out = append(out, r)
		}
	}
	return out
}
