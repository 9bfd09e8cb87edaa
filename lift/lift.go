// Package lift translates Go functions in SSA form into programs.
//
// Parameters become the inputs of the program: booleans and integers are
// variables of the matching sort, while slices and array pointers are 64-bit
// base addresses into the global memory. Element accesses are lowered to
// loads and stores, phi nodes to assignments on blocks split off the
// incoming edges, and conditional jumps to pairs of guarded edges.
package lift

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/ajalab/leakcheck/arch"
	"github.com/ajalab/leakcheck/ir"
)

// SymbolPackagePath is the import path of the marker functions recognized in analysed code.
const SymbolPackagePath = "github.com/ajalab/leakcheck/symbol"

// Function is a Go function to translate.
type Function struct {
	fn     *ssa.Function
	secret []string
	public []string
}

// NewFunction returns the translatable view of fn.
func NewFunction(fn *ssa.Function) *Function {
	return &Function{fn: fn}
}

// Declare adds parameter names to the secret and public inputs, on top of
// the calls to the marker functions found in the body.
func (f *Function) Declare(secret, public []string) *Function {
	f.secret = append(f.secret, secret...)
	f.public = append(f.public, public...)
	return f
}

// Name returns the name of the function.
func (f *Function) Name() string {
	return f.fn.Name()
}

// TryTranslateInto translates f. It fails with a TranslationError on the
// first construct that has no counterpart in a program.
func (f *Function) TryTranslateInto() (*ir.Program, error) {
	t := &translator{
		fn:     f.fn,
		g:      ir.NewBlockGraph(),
		values: make(map[ssa.Value]ir.Expression),
		arrays: make(map[ssa.Value]*array),
		secret: make(map[string]bool),
		public: make(map[string]bool),
	}
	for _, n := range f.secret {
		t.secret[n] = true
	}
	for _, n := range f.public {
		t.public[n] = true
	}
	if err := t.translate(); err != nil {
		return nil, err
	}
	p := ir.NewProgram(f.fn.Name(), t.g)
	t.applyPolicy(p)
	return p, nil
}

// array is a slice or array pointer parameter.
type array struct {
	base ir.Variable
	elem types.Type
	// length is constant for array pointers and a variable for slices.
	length ir.Expression
}

type translator struct {
	fn     *ssa.Function
	g      *ir.BlockGraph
	values map[ssa.Value]ir.Expression
	arrays map[ssa.Value]*array
	inputs []ir.Variable
	exit   int
	secret map[string]bool
	public map[string]bool
}

func (t *translator) errorf(instr ssa.Instruction, format string, args ...interface{}) error {
	pos := t.fn.Prog.Fset.Position(instr.Pos())
	msg := fmt.Sprintf(format, args...)
	if pos.IsValid() {
		return ir.Errorf(ir.TranslationError, instr, "%s: %s", pos, msg)
	}
	return ir.Errorf(ir.TranslationError, instr, "%s: %s", t.fn.Name(), msg)
}

func blockIndex(b *ssa.BasicBlock) int {
	return b.Index + 1
}

func (t *translator) block(b *ssa.BasicBlock) *ir.Block {
	return t.g.MustNode(blockIndex(b))
}

func (t *translator) translate() error {
	if len(t.fn.Blocks) == 0 {
		return ir.Errorf(ir.TranslationError, nil, "function %s has no body", t.fn.Name())
	}
	entry := t.g.AddNode(ir.NewBlock("entry"))
	for _, p := range t.fn.Params {
		if err := t.param(p); err != nil {
			return err
		}
	}
	for _, b := range t.fn.Blocks {
		t.g.AddNode(ir.NewBlock(fmt.Sprintf("%d.%s", b.Index, b.Comment)))
	}
	t.exit = t.g.AddNode(ir.NewBlock("exit"))
	t.g.SetEntry(entry)
	t.g.SetExit(t.exit)
	if err := t.g.InsertEdge(entry, blockIndex(t.fn.Blocks[0]), nil); err != nil {
		return err
	}

	// definitions dominate their uses except along the edges into phi nodes
	for _, b := range t.fn.DomPreorder() {
		for _, instr := range b.Instrs {
			if err := t.instruction(instr); err != nil {
				return err
			}
		}
	}
	for _, b := range t.fn.Blocks {
		if err := t.terminator(b); err != nil {
			return err
		}
	}
	return nil
}

func (t *translator) param(p *ssa.Parameter) error {
	if s, ok := sortOf(p.Type()); ok {
		v := ir.NewVariable(p.Name(), s)
		t.values[p] = v
		t.inputs = append(t.inputs, v)
		return nil
	}
	base := ir.BitVectorVar(p.Name(), 64)
	switch typ := p.Type().Underlying().(type) {
	case *types.Slice:
		n := ir.BitVectorVar(p.Name()+".len", 64)
		t.arrays[p] = &array{base: base, elem: typ.Elem(), length: n}
	case *types.Pointer:
		a, ok := typ.Elem().Underlying().(*types.Array)
		if !ok {
			return ir.Errorf(ir.TranslationError, p, "pointer parameter %s must point to an array", p.Name())
		}
		t.arrays[p] = &array{base: base, elem: a.Elem(), length: ir.BitVector64(uint64(a.Len()), 64)}
	default:
		return ir.Errorf(ir.TranslationError, p, "parameter %s has unsupported type %s", p.Name(), p.Type())
	}
	if _, ok := sortOf(t.arrays[p].elem); !ok {
		return ir.Errorf(ir.TranslationError, p, "parameter %s has unsupported element type %s", p.Name(), t.arrays[p].elem)
	}
	t.values[p] = base
	t.inputs = append(t.inputs, base)
	return nil
}

func widthOf(k types.BasicKind) uint {
	switch k {
	case types.Int8, types.Uint8:
		return 8
	case types.Int16, types.Uint16:
		return 16
	case types.Int32, types.Uint32:
		return 32
	}
	return 64
}

func sortOf(typ types.Type) (ir.Sort, bool) {
	b, ok := typ.Underlying().(*types.Basic)
	if !ok {
		return ir.Sort{}, false
	}
	switch info := b.Info(); {
	case info&types.IsBoolean != 0:
		return ir.BoolSort(), true
	case info&types.IsInteger != 0:
		return ir.BitVectorSort(widthOf(b.Kind())), true
	}
	return ir.Sort{}, false
}

func isUnsigned(typ types.Type) bool {
	b, ok := typ.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsUnsigned != 0
}

// expr returns the expression computing v.
func (t *translator) expr(instr ssa.Instruction, v ssa.Value) (ir.Expression, error) {
	if c, ok := v.(*ssa.Const); ok {
		return t.constant(instr, c)
	}
	if e, ok := t.values[v]; ok {
		return e, nil
	}
	return nil, t.errorf(instr, "operand %s is not supported", v.Name())
}

func (t *translator) constant(instr ssa.Instruction, c *ssa.Const) (ir.Expression, error) {
	s, ok := sortOf(c.Type())
	if !ok || c.Value == nil {
		return nil, t.errorf(instr, "constant %s is not supported", c)
	}
	if s.IsBool() {
		return ir.BoolConst(constant.BoolVal(c.Value)), nil
	}
	w := s.Width()
	var v uint64
	if isUnsigned(c.Type()) {
		v = c.Uint64()
	} else {
		v = uint64(c.Int64())
	}
	if w < 64 {
		v &= 1<<w - 1
	}
	return ir.BitVector64(v, w), nil
}

// define binds the SSA value of instr to a fresh variable assigned e.
func (t *translator) define(instr ssa.Instruction, v ssa.Value, e ir.Expression) {
	x := ir.NewVariable(v.Name(), e.Sort())
	t.emit(instr, ir.NewAssign(x, e))
	t.values[v] = x
}

func (t *translator) emit(instr ssa.Instruction, i ir.Instruction) {
	t.block(instr.Block()).Append(i.At(uint64(instr.Pos())))
}

func (t *translator) instruction(instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.DebugRef, *ssa.MakeInterface:
	case *ssa.If, *ssa.Jump, *ssa.Return, *ssa.Panic:
	case *ssa.Phi:
		s, ok := sortOf(instr.Type())
		if !ok {
			return t.errorf(instr, "phi of type %s is not supported", instr.Type())
		}
		t.values[instr] = ir.NewVariable(instr.Name(), s)
	case *ssa.BinOp:
		return t.binOp(instr)
	case *ssa.UnOp:
		return t.unOp(instr)
	case *ssa.Convert:
		x, err := t.expr(instr, instr.X)
		if err != nil {
			return err
		}
		s, ok := sortOf(instr.Type())
		if !ok || !s.IsBitVector() || !x.Sort().IsBitVector() {
			return t.errorf(instr, "conversion to %s is not supported", instr.Type())
		}
		if w := s.Width(); w > x.Sort().Width() && !isUnsigned(instr.X.Type()) {
			t.define(instr, instr, ir.SignExtend(w, x))
		} else {
			t.define(instr, instr, ir.Resize(w, x))
		}
	case *ssa.ChangeType:
		x, err := t.expr(instr, instr.X)
		if err != nil {
			return err
		}
		t.values[instr] = x
	case *ssa.IndexAddr:
		addr, err := t.indexAddr(instr)
		if err != nil {
			return err
		}
		t.values[instr] = addr
	case *ssa.Store:
		addr, ok := t.values[instr.Addr]
		if _, isIndex := instr.Addr.(*ssa.IndexAddr); !ok || !isIndex {
			return t.errorf(instr, "store to %s is not supported", instr.Addr.Name())
		}
		v, err := t.expr(instr, instr.Val)
		if err != nil {
			return err
		}
		if v.Sort().IsBool() {
			v = ir.BoolToBitVector(8, v)
		}
		t.emit(instr, ir.NewStore(addr, v))
	case *ssa.Call:
		return t.call(instr)
	default:
		return t.errorf(instr, "instruction %T is not supported", instr)
	}
	return nil
}

func (t *translator) binOp(instr *ssa.BinOp) error {
	x, err := t.expr(instr, instr.X)
	if err != nil {
		return err
	}
	y, err := t.expr(instr, instr.Y)
	if err != nil {
		return err
	}
	unsigned := isUnsigned(instr.X.Type())
	var e ir.Expression
	switch instr.Op {
	case token.ADD:
		e = ir.Add(x, y)
	case token.SUB:
		e = ir.Sub(x, y)
	case token.MUL:
		e = ir.Mul(x, y)
	case token.QUO, token.REM:
		if !unsigned {
			return t.errorf(instr, "signed %s is not supported", instr.Op)
		}
		if instr.Op == token.QUO {
			e = ir.UDiv(x, y)
		} else {
			e = ir.URem(x, y)
		}
	case token.AND:
		e = ir.BVAnd(x, y)
	case token.OR:
		e = ir.BVOr(x, y)
	case token.XOR:
		e = ir.BVXor(x, y)
	case token.AND_NOT:
		e = ir.BVAnd(x, ir.BVNot(y))
	case token.SHL:
		e = ir.Shl(x, ir.Resize(x.Sort().Width(), y))
	case token.SHR:
		if unsigned {
			e = ir.LShr(x, ir.Resize(x.Sort().Width(), y))
		} else {
			e = ir.AShr(x, ir.Resize(x.Sort().Width(), y))
		}
	case token.EQL:
		e = ir.Eq(x, y)
	case token.NEQ:
		e = ir.Neq(x, y)
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		e = compare(instr.Op, unsigned, x, y)
	default:
		return t.errorf(instr, "operator %s is not supported", instr.Op)
	}
	t.define(instr, instr, e)
	return nil
}

func compare(op token.Token, unsigned bool, x, y ir.Expression) ir.Expression {
	ops := map[token.Token][2]ir.Operator{
		token.LSS: {ir.OpBVSLt, ir.OpBVULt},
		token.LEQ: {ir.OpBVSLe, ir.OpBVULe},
		token.GTR: {ir.OpBVSGt, ir.OpBVUGt},
		token.GEQ: {ir.OpBVSGe, ir.OpBVUGe},
	}[op]
	if unsigned {
		return ir.BinaryBV(ops[1], x, y)
	}
	return ir.BinaryBV(ops[0], x, y)
}

func (t *translator) unOp(instr *ssa.UnOp) error {
	if instr.Op == token.MUL {
		return t.load(instr)
	}
	x, err := t.expr(instr, instr.X)
	if err != nil {
		return err
	}
	switch instr.Op {
	case token.NOT:
		t.define(instr, instr, ir.Not(x))
	case token.SUB:
		t.define(instr, instr, ir.Neg(x))
	case token.XOR:
		t.define(instr, instr, ir.BVNot(x))
	default:
		return t.errorf(instr, "operator %s is not supported", instr.Op)
	}
	return nil
}

func (t *translator) load(instr *ssa.UnOp) error {
	addr, ok := t.values[instr.X]
	if _, isIndex := instr.X.(*ssa.IndexAddr); !ok || !isIndex {
		return t.errorf(instr, "load from %s is not supported", instr.X.Name())
	}
	s, ok := sortOf(instr.Type())
	if !ok {
		return t.errorf(instr, "load of type %s is not supported", instr.Type())
	}
	if s.IsBool() {
		raw := ir.BitVectorVar(instr.Name()+".raw", 8)
		t.emit(instr, ir.NewLoad(raw, addr))
		t.define(instr, instr, ir.BitVectorToBool(raw))
		return nil
	}
	v := ir.NewVariable(instr.Name(), s)
	t.emit(instr, ir.NewLoad(v, addr))
	t.values[instr] = v
	return nil
}

// indexAddr returns base + index * element size.
func (t *translator) indexAddr(instr *ssa.IndexAddr) (ir.Expression, error) {
	a, ok := t.arrays[instr.X]
	if !ok {
		return nil, t.errorf(instr, "indexing %s is not supported", instr.X.Name())
	}
	i, err := t.expr(instr, instr.Index)
	if err != nil {
		return nil, err
	}
	if !i.Sort().IsBitVector() {
		return nil, t.errorf(instr, "index of sort %s", i.Sort().Describe())
	}
	if w := i.Sort().Width(); w < 64 && !isUnsigned(instr.Index.Type()) {
		i = ir.SignExtend(64, i)
	} else {
		i = ir.Resize(64, i)
	}
	s, _ := sortOf(a.elem)
	size := uint64(1)
	if s.IsBitVector() {
		size = uint64(s.Width() / 8)
	}
	if c, ok := i.(ir.Constant); ok {
		return ir.Add(a.base, ir.BitVector64(c.Uint64()*size, 64)), nil
	}
	return ir.Add(a.base, ir.Mul(i, ir.BitVector64(size, 64))), nil
}

func (t *translator) call(instr *ssa.Call) error {
	common := instr.Common()
	if b, ok := common.Value.(*ssa.Builtin); ok {
		if b.Name() != "len" || len(common.Args) != 1 {
			return t.errorf(instr, "builtin %s is not supported", b.Name())
		}
		a, ok := t.arrays[common.Args[0]]
		if !ok {
			return t.errorf(instr, "len of %s is not supported", common.Args[0].Name())
		}
		if v, ok := a.length.(ir.Variable); ok && !t.isInput(v) {
			t.inputs = append(t.inputs, v)
		}
		t.values[instr] = a.length
		return nil
	}

	callee := common.StaticCallee()
	if callee == nil || callee.Pkg == nil || callee.Pkg.Pkg.Path() != SymbolPackagePath {
		return t.errorf(instr, "call to %s is not supported", common.Value.Name())
	}
	switch callee.Name() {
	case "Secret", "Public":
		for _, arg := range common.Args {
			if mi, ok := arg.(*ssa.MakeInterface); ok {
				arg = mi.X
			}
			p, ok := arg.(*ssa.Parameter)
			if !ok {
				return t.errorf(instr, "%s expects a parameter", callee.Name())
			}
			if callee.Name() == "Secret" {
				t.secret[p.Name()] = true
			} else {
				t.public[p.Name()] = true
			}
		}
	case "Barrier":
		t.emit(instr, ir.NewBarrier())
	case "Flush":
		t.emit(instr, ir.NewFlush())
	default:
		return t.errorf(instr, "marker %s is not supported", callee.Name())
	}
	return nil
}

func (t *translator) isInput(v ir.Variable) bool {
	for _, u := range t.inputs {
		if u == v {
			return true
		}
	}
	return false
}

func (t *translator) terminator(b *ssa.BasicBlock) error {
	if len(b.Instrs) == 0 {
		return ir.Errorf(ir.TranslationError, nil, "block %d of %s is empty", b.Index, t.fn.Name())
	}
	switch instr := b.Instrs[len(b.Instrs)-1].(type) {
	case *ssa.If:
		cond, err := t.expr(instr, instr.Cond)
		if err != nil {
			return err
		}
		if err := t.edge(b, b.Succs[0], cond); err != nil {
			return err
		}
		return t.edge(b, b.Succs[1], ir.Not(cond))
	case *ssa.Jump:
		return t.edge(b, b.Succs[0], nil)
	case *ssa.Return:
		return t.g.InsertEdge(blockIndex(b), t.exit, nil)
	case *ssa.Panic:
		t.emit(instr, ir.NewAssume(ir.False))
		return t.g.InsertEdge(blockIndex(b), t.exit, nil)
	default:
		return t.errorf(instr, "terminator %T is not supported", instr)
	}
}

// edge connects from to to. The phi nodes of to are assigned on a block
// split off the edge.
func (t *translator) edge(from, to *ssa.BasicBlock, cond ir.Expression) error {
	var phis []*ssa.Phi
	for _, instr := range to.Instrs {
		if phi, ok := instr.(*ssa.Phi); ok {
			phis = append(phis, phi)
		}
	}
	if len(phis) == 0 {
		return t.g.InsertEdge(blockIndex(from), blockIndex(to), cond)
	}

	pred := -1
	for i, p := range to.Preds {
		if p == from {
			pred = i
			break
		}
	}
	if pred < 0 {
		return ir.Errorf(ir.TranslationError, nil, "block %d is not a predecessor of block %d", from.Index, to.Index)
	}
	var moves, copies []ir.Instruction
	for _, phi := range phis {
		v, err := t.expr(phi, phi.Edges[pred])
		if err != nil {
			return err
		}
		x := t.values[phi].(ir.Variable)
		if len(phis) == 1 {
			moves = append(moves, ir.NewAssign(x, v).At(uint64(phi.Pos())))
			continue
		}
		tmp := ir.NewVariable(x.Name()+"'", x.Sort())
		moves = append(moves, ir.NewAssign(tmp, v))
		copies = append(copies, ir.NewAssign(x, tmp))
	}
	split := t.g.AddNode(ir.NewBlock(fmt.Sprintf("%d->%d", from.Index, to.Index), append(moves, copies...)...))
	if err := t.g.InsertEdge(blockIndex(from), split, cond); err != nil {
		return err
	}
	return t.g.InsertEdge(split, blockIndex(to), nil)
}

// applyPolicy marks the secret inputs of p. An array parameter marked secret
// also marks the memory secret. When only public inputs are declared, every
// other parameter is secret.
func (t *translator) applyPolicy(p *ir.Program) {
	secrets := t.secret
	if len(secrets) == 0 && len(t.public) > 0 {
		secrets = make(map[string]bool)
		for _, v := range t.inputs {
			if !t.public[v.Name()] && !t.public[strings.TrimSuffix(v.Name(), ".len")] {
				secrets[v.Name()] = true
			}
		}
	}
	for name := range secrets {
		p.MarkSecret(name)
	}
	for _, prm := range t.fn.Params {
		if _, ok := t.arrays[prm]; ok && secrets[prm.Name()] {
			p.MarkSecret(arch.MemoryVariable.Name())
		}
	}
}
