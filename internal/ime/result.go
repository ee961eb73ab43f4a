package ime

import "fmt"

// ResultType is the flat tag of an engine result. The numbering matches the
// engine ABI, so RawResult values can cross process or FFI boundaries.
type ResultType uint8

const (
	TypeBypass ResultType = iota
	TypeToggleHangul
	TypeClearPreedit
	TypeCommit
	TypeCommitPreedit
	TypePreedit
	TypeCommitCommit
	TypeCommitBypass
)

var resultTypeNames = map[ResultType]string{
	TypeBypass:        "Bypass",
	TypeToggleHangul:  "ToggleHangul",
	TypeClearPreedit:  "ClearPreedit",
	TypeCommit:        "Commit",
	TypeCommitPreedit: "CommitPreedit",
	TypePreedit:       "Preedit",
	TypeCommitCommit:  "CommitCommit",
	TypeCommitBypass:  "CommitBypass",
}

func (t ResultType) String() string {
	if name, ok := resultTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ResultType(%d)", uint8(t))
}

// Result is what the engine reports for one key press. It is a closed set:
// only the types in this file implement it.
type Result interface {
	Type() ResultType
	sealed()
}

// Bypass: nothing to do, the host handles the key.
type Bypass struct{}

// ToggleHangul: the engine switched its input mode. The key is consumed.
type ToggleHangul struct{}

// ClearPreedit: erase the shown preedit without inserting text.
type ClearPreedit struct{}

// Commit: insert one character.
type Commit struct{ Char rune }

// CommitPreedit: insert Commit, then show Preedit as the new composition.
type CommitPreedit struct{ Commit, Preedit rune }

// Preedit: show Char as the composition in progress.
type Preedit struct{ Char rune }

// CommitCommit: insert First, then Second.
type CommitCommit struct{ First, Second rune }

// CommitBypass: insert Char, then let the host handle the key as well.
type CommitBypass struct{ Char rune }

// Unknown carries a tag this package does not recognise.
type Unknown struct{ Tag ResultType }

func (Bypass) Type() ResultType        { return TypeBypass }
func (ToggleHangul) Type() ResultType  { return TypeToggleHangul }
func (ClearPreedit) Type() ResultType  { return TypeClearPreedit }
func (Commit) Type() ResultType        { return TypeCommit }
func (CommitPreedit) Type() ResultType { return TypeCommitPreedit }
func (Preedit) Type() ResultType       { return TypePreedit }
func (CommitCommit) Type() ResultType  { return TypeCommitCommit }
func (CommitBypass) Type() ResultType  { return TypeCommitBypass }
func (u Unknown) Type() ResultType     { return u.Tag }

func (Bypass) sealed()        {}
func (ToggleHangul) sealed()  {}
func (ClearPreedit) sealed()  {}
func (Commit) sealed()        {}
func (CommitPreedit) sealed() {}
func (Preedit) sealed()       {}
func (CommitCommit) sealed()  {}
func (CommitBypass) sealed()  {}
func (Unknown) sealed()       {}

// RawResult is the flat form of a Result: a tag plus two scalar slots, each
// NoChar when unused.
type RawResult struct {
	Type  ResultType `json:"ty"`
	Char1 uint32     `json:"char1"`
	Char2 uint32     `json:"char2"`
}

// Decode converts a flat result into its variant. Slots the tag does not use
// are ignored. Tags outside the known set decode to Unknown.
func Decode(r RawResult) Result {
	c1, c2 := rune(r.Char1), rune(r.Char2)
	switch r.Type {
	case TypeBypass:
		return Bypass{}
	case TypeToggleHangul:
		return ToggleHangul{}
	case TypeClearPreedit:
		return ClearPreedit{}
	case TypeCommit:
		return Commit{Char: c1}
	case TypeCommitPreedit:
		return CommitPreedit{Commit: c1, Preedit: c2}
	case TypePreedit:
		return Preedit{Char: c1}
	case TypeCommitCommit:
		return CommitCommit{First: c1, Second: c2}
	case TypeCommitBypass:
		return CommitBypass{Char: c1}
	default:
		return Unknown{Tag: r.Type}
	}
}

// Encode is the inverse of Decode.
func Encode(res Result) RawResult {
	raw := RawResult{Type: res.Type()}
	switch r := res.(type) {
	case Commit:
		raw.Char1 = uint32(r.Char)
	case CommitPreedit:
		raw.Char1, raw.Char2 = uint32(r.Commit), uint32(r.Preedit)
	case Preedit:
		raw.Char1 = uint32(r.Char)
	case CommitCommit:
		raw.Char1, raw.Char2 = uint32(r.First), uint32(r.Second)
	case CommitBypass:
		raw.Char1 = uint32(r.Char)
	}
	return raw
}
