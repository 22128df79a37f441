package deck

// Card indices follow suit-major order: c/13 is the suit, c%13 the rank.
type Card uint8

const (
	NumCards = 52
	NumRanks = 13

	// NoRank is the sentinel returned by ask queries outside an ask.
	NoRank Rank = 0xFF
)

type Rank uint8

func (c Card) Rank() Rank {
	return Rank(c % 13)
}

func (c Card) Suit() uint8 {
	return uint8(c / 13)
}

func (r Rank) Valid() bool {
	return r < NumRanks
}

func (r Rank) String() string {
	if !r.Valid() {
		return "?"
	}
	return string(rankLetter(r))
}

func rankLetter(r Rank) byte {
	switch r {
	case 0:
		return 'A'
	case 9:
		return 'T'
	case 10:
		return 'J'
	case 11:
		return 'Q'
	case 12:
		return 'K'
	default:
		return byte('1' + r) // 2..9 for ranks 1..8
	}
}

func (c Card) String() string {
	if c >= NumCards {
		return "??"
	}
	var sch byte
	switch c.Suit() {
	case 0:
		sch = 'c'
	case 1:
		sch = 'd'
	case 2:
		sch = 'h'
	case 3:
		sch = 's'
	}
	return string([]byte{rankLetter(c.Rank()), sch})
}
