package gpu

// Command is one recorded operation inside a CommandList.
type Command interface {
	command()
}

// DispatchCommand runs the compute program over Groups workgroups with Bindings.
type DispatchCommand struct {
	Bindings BindGroup
	Groups   uint32
}

// DrawCommand draws InstanceCount copies of the shape, one per particle record
// in Instances.
type DrawCommand struct {
	Shape         Buffer
	VertexCount   uint32
	Instances     Buffer
	InstanceCount uint32
}

func (DispatchCommand) command() {}
func (DrawCommand) command()     {}

// CommandList is an ordered recording submitted as a single unit.
type CommandList struct {
	Commands []Command
}

// Encoder records commands for one frame.
type Encoder struct {
	list CommandList
}

func NewEncoder() *Encoder {
	return &Encoder{list: CommandList{Commands: make([]Command, 0, 2)}}
}

func (e *Encoder) Dispatch(bindings BindGroup, groups uint32) {
	e.list.Commands = append(e.list.Commands, DispatchCommand{Bindings: bindings, Groups: groups})
}

func (e *Encoder) Draw(shape Buffer, vertexCount uint32, instances Buffer, instanceCount uint32) {
	e.list.Commands = append(e.list.Commands, DrawCommand{
		Shape:         shape,
		VertexCount:   vertexCount,
		Instances:     instances,
		InstanceCount: instanceCount,
	})
}

func (e *Encoder) Finish() *CommandList {
	list := e.list
	e.list = CommandList{}
	return &list
}
