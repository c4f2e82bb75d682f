// Package swap implements the DISCON exchange record ("avrSwap"): the fixed
// 84-slot single-precision array a Bladed-style controller reads its inputs
// from and writes its demands into, plus the character buffers and fail flag
// passed alongside it.
//
// Slots are addressed by their 1-based index in the external contract. The
// named Index constants below are the only indices this module touches.
package swap

import (
	"bytes"
	"fmt"
)

const (
	// Size is the number of slots in the record.
	Size = 84

	// StringLength is the capacity of each character buffer.
	StringLength = 1024
)

// Index is a 1-based slot number.
type Index int

const (
	Status                Index = 1
	Time                  Index = 2
	CommunicationInterval Index = 3
	BladePitch1           Index = 4
	MeasuredPower         Index = 15
	GeneratorSpeed        Index = 20
	RotorSpeed            Index = 21
	MeasuredTorque        Index = 23
	WindSpeed             Index = 27
	PitchControlType      Index = 28
	RootMoment1           Index = 30
	RootMoment2           Index = 31
	RootMoment3           Index = 32
	BladePitch2           Index = 33
	BladePitch3           Index = 34
	PitchDemand1          Index = 42
	PitchDemand2          Index = 43
	PitchDemand3          Index = 44
	PitchDemand           Index = 45
	TorqueDemand          Index = 47
	MessageLength         Index = 49
	InfileLength          Index = 50
	OutnameLength         Index = 51
	TowerForeAftAccel     Index = 53
	RotorAzimuth          Index = 60
	BladeCount            Index = 61
	NoddingAccel          Index = 83
)

// Status sentinels written to the Status slot.
const (
	StatusFirstCall = 0
	StatusRunning   = 1
	StatusFinal     = -1
)

// Pitch control types written to the PitchControlType slot.
const (
	PitchCollective = 0
	PitchIndividual = 1
)

var (
	BladePitch   = [3]Index{BladePitch1, BladePitch2, BladePitch3}
	RootMoment   = [3]Index{RootMoment1, RootMoment2, RootMoment3}
	PitchDemands = [3]Index{PitchDemand1, PitchDemand2, PitchDemand3}
)

func (i Index) Valid() bool { return i >= 1 && i <= Size }

func (i Index) String() string { return fmt.Sprintf("slot[%d]", int(i)) }

// Record is one controller's exchange record. The zero value is not usable;
// call New.
type Record struct {
	slots [Size]float32

	// Infile holds the NUL-terminated controller input file path, or a zeroed
	// buffer of StringLength bytes when the controller has no input file.
	Infile  []byte
	Outname [StringLength]byte
	Message [StringLength]byte

	// Fail is set by the controller; negative means the call failed.
	Fail int32
}

// New allocates a record. An empty infile gives the controller a zeroed
// buffer of full capacity, matching what DISCON callers conventionally pass.
func New(infile string) *Record {
	r := &Record{}
	if infile == "" {
		r.Infile = make([]byte, StringLength)
	} else {
		r.Infile = append([]byte(infile), 0)
	}
	return r
}

// InfileLen is the length reported to the controller in the InfileLength
// slot: the path length, or the buffer capacity when no path was given.
func (r *Record) InfileLen() int {
	if n := bytes.IndexByte(r.Infile, 0); n > 0 {
		return n
	}
	return len(r.Infile)
}

// InfilePath returns the input file path, or "" when none was given.
func (r *Record) InfilePath() string {
	return cString(r.Infile)
}

func (r *Record) Get(i Index) float64 {
	if !i.Valid() {
		panic(fmt.Sprintf("swap: index %d out of range [1, %d]", int(i), Size))
	}
	return float64(r.slots[i-1])
}

func (r *Record) Set(i Index, v float64) {
	if !i.Valid() {
		panic(fmt.Sprintf("swap: index %d out of range [1, %d]", int(i), Size))
	}
	r.slots[i-1] = float32(v)
}

// Lookup is Get without the panic, for indices that come from user input.
func (r *Record) Lookup(i Index) (float64, bool) {
	if !i.Valid() {
		return 0, false
	}
	return float64(r.slots[i-1]), true
}

// Slots exposes the backing array for foreign calls. Callers must not retain
// the pointer beyond the call.
func (r *Record) Slots() *[Size]float32 { return &r.slots }

// Values returns a copy of all slots in index order.
func (r *Record) Values() []float32 {
	out := make([]float32, Size)
	copy(out, r.slots[:])
	return out
}

func (r *Record) MessageText() string { return cString(r.Message[:]) }

func (r *Record) OutnameText() string { return cString(r.Outname[:]) }

// SetMessage copies msg into the message buffer, truncating to leave room for
// the terminating NUL.
func (r *Record) SetMessage(msg string) {
	r.Message = [StringLength]byte{}
	copy(r.Message[:StringLength-1], msg)
}

func cString(b []byte) string {
	if n := bytes.IndexByte(b, 0); n >= 0 {
		return string(b[:n])
	}
	return string(b)
}
