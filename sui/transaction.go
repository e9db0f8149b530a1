package sui

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// ObjectRef identifies a specific version of an owned object.
type ObjectRef struct {
	ObjectID Address
	Version  uint64
	Digest   []byte
}

func (r ObjectRef) encode(e *Encoder) {
	e.Address(r.ObjectID)
	e.U64(r.Version)
	e.Bytes(r.Digest)
}

func decodeObjectRef(d *Decoder) ObjectRef {
	ref := ObjectRef{ObjectID: d.Address(), Version: d.U64(), Digest: d.Bytes()}
	if d.Err() == nil && len(ref.Digest) != 32 {
		d.fail(fmt.Errorf("object digest must be 32 bytes, got %d", len(ref.Digest)))
	}
	return ref
}

// ArgumentKind enumerates programmable transaction argument variants.
type ArgumentKind uint8

const (
	ArgGasCoin ArgumentKind = iota
	ArgInput
	ArgResult
	ArgNestedResult
)

// Argument references a value inside a programmable transaction.
type Argument struct {
	Kind   ArgumentKind
	Index  uint16
	Nested uint16
}

func GasCoin() Argument                 { return Argument{Kind: ArgGasCoin} }
func Input(i uint16) Argument           { return Argument{Kind: ArgInput, Index: i} }
func Result(i uint16) Argument          { return Argument{Kind: ArgResult, Index: i} }
func NestedResult(i, j uint16) Argument { return Argument{Kind: ArgNestedResult, Index: i, Nested: j} }

func (a Argument) encode(e *Encoder) {
	e.ULEB128(uint64(a.Kind))
	switch a.Kind {
	case ArgInput, ArgResult:
		e.U16(a.Index)
	case ArgNestedResult:
		e.U16(a.Index)
		e.U16(a.Nested)
	}
}

func decodeArgument(d *Decoder) Argument {
	a := Argument{Kind: ArgumentKind(d.ULEB128())}
	switch a.Kind {
	case ArgGasCoin:
	case ArgInput, ArgResult:
		a.Index = d.U16()
	case ArgNestedResult:
		a.Index = d.U16()
		a.Nested = d.U16()
	default:
		d.fail(fmt.Errorf("unknown argument variant %d", a.Kind))
	}
	return a
}

func encodeArguments(e *Encoder, args []Argument) {
	e.ULEB128(uint64(len(args)))
	for _, a := range args {
		a.encode(e)
	}
}

func decodeArguments(d *Decoder) []Argument {
	n := d.Len()
	args := make([]Argument, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		args = append(args, decodeArgument(d))
	}
	return args
}

// ObjectArgKind enumerates object input variants.
type ObjectArgKind uint8

const (
	ObjectImmOrOwned ObjectArgKind = iota
	ObjectShared
	ObjectReceiving
)

// ObjectArg is an object input. Ref is used by owned and receiving
// objects; the shared fields by shared objects.
type ObjectArg struct {
	Kind                 ObjectArgKind
	Ref                  ObjectRef
	SharedID             Address
	InitialSharedVersion uint64
	Mutable              bool
}

// CallArg is a transaction input: either pure BCS bytes or an object.
type CallArg struct {
	Pure   []byte
	Object *ObjectArg
}

// PureU64 returns a pure input holding v.
func PureU64(v uint64) CallArg {
	var e Encoder
	e.U64(v)
	return CallArg{Pure: e.Result()}
}

// PureAddress returns a pure input holding a.
func PureAddress(a Address) CallArg {
	return CallArg{Pure: append([]byte(nil), a[:]...)}
}

func (c CallArg) encode(e *Encoder) {
	if c.Object == nil {
		e.ULEB128(0)
		e.Bytes(c.Pure)
		return
	}
	e.ULEB128(1)
	o := c.Object
	e.ULEB128(uint64(o.Kind))
	switch o.Kind {
	case ObjectShared:
		e.Address(o.SharedID)
		e.U64(o.InitialSharedVersion)
		e.Bool(o.Mutable)
	default:
		o.Ref.encode(e)
	}
}

func decodeCallArg(d *Decoder) CallArg {
	switch v := d.ULEB128(); v {
	case 0:
		return CallArg{Pure: d.Bytes()}
	case 1:
		o := &ObjectArg{Kind: ObjectArgKind(d.ULEB128())}
		switch o.Kind {
		case ObjectImmOrOwned, ObjectReceiving:
			o.Ref = decodeObjectRef(d)
		case ObjectShared:
			o.SharedID = d.Address()
			o.InitialSharedVersion = d.U64()
			o.Mutable = d.Bool()
		default:
			d.fail(fmt.Errorf("unknown object argument variant %d", o.Kind))
		}
		return CallArg{Object: o}
	default:
		d.fail(fmt.Errorf("unknown call argument variant %d", v))
		return CallArg{}
	}
}

// TypeTagKind enumerates Move type tag variants.
type TypeTagKind uint8

const (
	TypeBool TypeTagKind = iota
	TypeU8
	TypeU64
	TypeU128
	TypeAddress
	TypeSigner
	TypeVector
	TypeStruct
	TypeU16
	TypeU32
	TypeU256
)

// maxTypeDepth bounds nested vector/struct type tags.
const maxTypeDepth = 16

// TypeTag is a Move type.
type TypeTag struct {
	Kind   TypeTagKind
	Elem   *TypeTag
	Struct *StructTag
}

// StructTag names a Move struct type.
type StructTag struct {
	Address    Address
	Module     string
	Name       string
	TypeParams []TypeTag
}

func (t TypeTag) encode(e *Encoder) {
	e.ULEB128(uint64(t.Kind))
	switch t.Kind {
	case TypeVector:
		t.Elem.encode(e)
	case TypeStruct:
		e.Address(t.Struct.Address)
		e.Str(t.Struct.Module)
		e.Str(t.Struct.Name)
		encodeTypeTags(e, t.Struct.TypeParams)
	}
}

func encodeTypeTags(e *Encoder, tags []TypeTag) {
	e.ULEB128(uint64(len(tags)))
	for _, t := range tags {
		t.encode(e)
	}
}

func decodeTypeTag(d *Decoder, depth int) TypeTag {
	if depth > maxTypeDepth {
		d.fail(errors.New("type tag nesting too deep"))
		return TypeTag{}
	}
	t := TypeTag{Kind: TypeTagKind(d.ULEB128())}
	switch t.Kind {
	case TypeBool, TypeU8, TypeU64, TypeU128, TypeAddress, TypeSigner, TypeU16, TypeU32, TypeU256:
	case TypeVector:
		elem := decodeTypeTag(d, depth+1)
		t.Elem = &elem
	case TypeStruct:
		t.Struct = &StructTag{Address: d.Address(), Module: d.Str(), Name: d.Str()}
		t.Struct.TypeParams = decodeTypeTags(d, depth+1)
	default:
		d.fail(fmt.Errorf("unknown type tag variant %d", t.Kind))
	}
	return t
}

func decodeTypeTags(d *Decoder, depth int) []TypeTag {
	n := d.Len()
	tags := make([]TypeTag, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		tags = append(tags, decodeTypeTag(d, depth))
	}
	return tags
}

// Command is one step of a programmable transaction.
type Command interface {
	variant() uint64
	encode(e *Encoder)
	arguments() []Argument
}

type MoveCall struct {
	Package       Address
	Module        string
	Function      string
	TypeArguments []TypeTag
	Arguments     []Argument
}

type TransferObjects struct {
	Objects   []Argument
	Recipient Argument
}

type SplitCoins struct {
	Coin    Argument
	Amounts []Argument
}

type MergeCoins struct {
	Destination Argument
	Sources     []Argument
}

type Publish struct {
	Modules      [][]byte
	Dependencies []Address
}

type MakeMoveVec struct {
	Type     *TypeTag
	Elements []Argument
}

type Upgrade struct {
	Modules      [][]byte
	Dependencies []Address
	Package      Address
	Ticket       Argument
}

func (MoveCall) variant() uint64        { return 0 }
func (TransferObjects) variant() uint64 { return 1 }
func (SplitCoins) variant() uint64      { return 2 }
func (MergeCoins) variant() uint64      { return 3 }
func (Publish) variant() uint64         { return 4 }
func (MakeMoveVec) variant() uint64     { return 5 }
func (Upgrade) variant() uint64         { return 6 }

func (c MoveCall) encode(e *Encoder) {
	e.Address(c.Package)
	e.Str(c.Module)
	e.Str(c.Function)
	encodeTypeTags(e, c.TypeArguments)
	encodeArguments(e, c.Arguments)
}

func (c TransferObjects) encode(e *Encoder) {
	encodeArguments(e, c.Objects)
	c.Recipient.encode(e)
}

func (c SplitCoins) encode(e *Encoder) {
	c.Coin.encode(e)
	encodeArguments(e, c.Amounts)
}

func (c MergeCoins) encode(e *Encoder) {
	c.Destination.encode(e)
	encodeArguments(e, c.Sources)
}

func encodeModules(e *Encoder, modules [][]byte, deps []Address) {
	e.ULEB128(uint64(len(modules)))
	for _, m := range modules {
		e.Bytes(m)
	}
	e.ULEB128(uint64(len(deps)))
	for _, a := range deps {
		e.Address(a)
	}
}

func (c Publish) encode(e *Encoder) { encodeModules(e, c.Modules, c.Dependencies) }

func (c MakeMoveVec) encode(e *Encoder) {
	if c.Type == nil {
		e.U8(0)
	} else {
		e.U8(1)
		c.Type.encode(e)
	}
	encodeArguments(e, c.Elements)
}

func (c Upgrade) encode(e *Encoder) {
	encodeModules(e, c.Modules, c.Dependencies)
	e.Address(c.Package)
	c.Ticket.encode(e)
}

func (c MoveCall) arguments() []Argument { return c.Arguments }
func (c TransferObjects) arguments() []Argument {
	return append(append([]Argument(nil), c.Objects...), c.Recipient)
}
func (c SplitCoins) arguments() []Argument {
	return append([]Argument{c.Coin}, c.Amounts...)
}
func (c MergeCoins) arguments() []Argument {
	return append([]Argument{c.Destination}, c.Sources...)
}
func (Publish) arguments() []Argument       { return nil }
func (c MakeMoveVec) arguments() []Argument { return c.Elements }
func (c Upgrade) arguments() []Argument     { return []Argument{c.Ticket} }

func decodeModules(d *Decoder) ([][]byte, []Address) {
	n := d.Len()
	modules := make([][]byte, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		modules = append(modules, d.Bytes())
	}
	m := d.Len()
	deps := make([]Address, 0, m)
	for i := 0; i < m && d.Err() == nil; i++ {
		deps = append(deps, d.Address())
	}
	return modules, deps
}

func decodeCommand(d *Decoder) Command {
	switch v := d.ULEB128(); v {
	case 0:
		c := MoveCall{Package: d.Address(), Module: d.Str(), Function: d.Str()}
		c.TypeArguments = decodeTypeTags(d, 0)
		c.Arguments = decodeArguments(d)
		return c
	case 1:
		objs := decodeArguments(d)
		return TransferObjects{Objects: objs, Recipient: decodeArgument(d)}
	case 2:
		coin := decodeArgument(d)
		return SplitCoins{Coin: coin, Amounts: decodeArguments(d)}
	case 3:
		dst := decodeArgument(d)
		return MergeCoins{Destination: dst, Sources: decodeArguments(d)}
	case 4:
		modules, deps := decodeModules(d)
		return Publish{Modules: modules, Dependencies: deps}
	case 5:
		c := MakeMoveVec{}
		switch d.U8() {
		case 0:
		case 1:
			t := decodeTypeTag(d, 0)
			c.Type = &t
		default:
			d.fail(errors.New("invalid option tag"))
		}
		c.Elements = decodeArguments(d)
		return c
	case 6:
		modules, deps := decodeModules(d)
		pkg := d.Address()
		return Upgrade{Modules: modules, Dependencies: deps, Package: pkg, Ticket: decodeArgument(d)}
	default:
		d.fail(fmt.Errorf("unknown command variant %d", v))
		return nil
	}
}

// ProgrammableTransaction is the only transaction kind a user can sign.
type ProgrammableTransaction struct {
	Inputs   []CallArg
	Commands []Command
}

// Validate checks that every argument refers to an existing input or an
// earlier command result.
func (pt *ProgrammableTransaction) Validate() error {
	if len(pt.Commands) == 0 {
		return errors.New("transaction has no commands")
	}
	for i, cmd := range pt.Commands {
		for _, a := range cmd.arguments() {
			switch a.Kind {
			case ArgInput:
				if int(a.Index) >= len(pt.Inputs) {
					return fmt.Errorf("command %d references input %d of %d", i, a.Index, len(pt.Inputs))
				}
			case ArgResult, ArgNestedResult:
				if int(a.Index) >= i {
					return fmt.Errorf("command %d references result of command %d", i, a.Index)
				}
			}
		}
	}
	return nil
}

func (pt *ProgrammableTransaction) encode(e *Encoder) {
	e.ULEB128(uint64(len(pt.Inputs)))
	for _, in := range pt.Inputs {
		in.encode(e)
	}
	e.ULEB128(uint64(len(pt.Commands)))
	for _, c := range pt.Commands {
		e.ULEB128(c.variant())
		c.encode(e)
	}
}

func decodeProgrammable(d *Decoder) *ProgrammableTransaction {
	pt := &ProgrammableTransaction{}
	n := d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		pt.Inputs = append(pt.Inputs, decodeCallArg(d))
	}
	m := d.Len()
	for i := 0; i < m && d.Err() == nil; i++ {
		if c := decodeCommand(d); c != nil {
			pt.Commands = append(pt.Commands, c)
		}
	}
	return pt
}

// EncodeTransactionKind serializes pt as a TransactionKind.
func EncodeTransactionKind(pt *ProgrammableTransaction) []byte {
	var e Encoder
	e.ULEB128(0)
	pt.encode(&e)
	return e.Result()
}

func decodeKind(d *Decoder) *ProgrammableTransaction {
	if v := d.ULEB128(); v != 0 && d.Err() == nil {
		d.fail(fmt.Errorf("unsupported transaction kind %d: only programmable transactions can be signed", v))
		return nil
	}
	return decodeProgrammable(d)
}

// DecodeTransactionKind parses and validates TransactionKind bytes.
func DecodeTransactionKind(b []byte) (*ProgrammableTransaction, error) {
	d := NewDecoder(b)
	pt := decodeKind(d)
	if err := d.Done(); err != nil {
		return nil, fmt.Errorf("decoding transaction kind: %w", err)
	}
	if err := pt.Validate(); err != nil {
		return nil, err
	}
	return pt, nil
}

// GasData designates the coins and limits paying for a transaction.
type GasData struct {
	Payment []ObjectRef
	Owner   Address
	Price   uint64
	Budget  uint64
}

// TransactionData is the V1 payload that gets signed and executed.
type TransactionData struct {
	Kind   *ProgrammableTransaction
	Sender Address
	Gas    GasData
	// ExpirationEpoch, when non-nil, makes the transaction invalid after
	// that epoch.
	ExpirationEpoch *uint64
}

// Bytes serializes the transaction data.
func (td *TransactionData) Bytes() []byte {
	var e Encoder
	e.ULEB128(0) // V1
	e.ULEB128(0) // ProgrammableTransaction
	td.Kind.encode(&e)
	e.Address(td.Sender)
	e.ULEB128(uint64(len(td.Gas.Payment)))
	for _, ref := range td.Gas.Payment {
		ref.encode(&e)
	}
	e.Address(td.Gas.Owner)
	e.U64(td.Gas.Price)
	e.U64(td.Gas.Budget)
	if td.ExpirationEpoch == nil {
		e.ULEB128(0)
	} else {
		e.ULEB128(1)
		e.U64(*td.ExpirationEpoch)
	}
	return e.Result()
}

// DecodeTransactionData parses and validates serialized TransactionData.
func DecodeTransactionData(b []byte) (*TransactionData, error) {
	d := NewDecoder(b)
	if v := d.ULEB128(); v != 0 && d.Err() == nil {
		return nil, fmt.Errorf("unsupported transaction data version %d", v)
	}
	td := &TransactionData{Kind: decodeKind(d), Sender: d.Address()}
	n := d.Len()
	for i := 0; i < n && d.Err() == nil; i++ {
		td.Gas.Payment = append(td.Gas.Payment, decodeObjectRef(d))
	}
	td.Gas.Owner = d.Address()
	td.Gas.Price = d.U64()
	td.Gas.Budget = d.U64()
	switch v := d.ULEB128(); v {
	case 0:
	case 1:
		epoch := d.U64()
		td.ExpirationEpoch = &epoch
	default:
		d.fail(fmt.Errorf("unknown expiration variant %d", v))
	}
	if err := d.Done(); err != nil {
		return nil, fmt.Errorf("decoding transaction data: %w", err)
	}
	if err := td.Kind.Validate(); err != nil {
		return nil, err
	}
	return td, nil
}

// TransferSui builds the programmable transaction that splits amount off
// the gas coin and sends it to recipient.
func TransferSui(recipient Address, amount uint64) *ProgrammableTransaction {
	return &ProgrammableTransaction{
		Inputs: []CallArg{PureU64(amount), PureAddress(recipient)},
		Commands: []Command{
			SplitCoins{Coin: GasCoin(), Amounts: []Argument{Input(0)}},
			TransferObjects{Objects: []Argument{NestedResult(0, 0)}, Recipient: Input(1)},
		},
	}
}

// TransactionDigest returns the base58 digest the network assigns to the
// given transaction data bytes.
func TransactionDigest(txBytes []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("TransactionData::"))
	h.Write(txBytes)
	return base58.Encode(h.Sum(nil))
}
