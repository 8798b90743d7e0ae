package index

// Posting lists the positions of one term in one segment-local document.
type Posting struct {
	Doc       int32   `json:"d"`
	Positions []int32 `json:"p"`
}

// Frequency is the number of occurrences of the term in the document.
func (p Posting) Frequency() int { return len(p.Positions) }

// PostingList is ordered by Doc; positions within a posting are ascending.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}

// Document is the forward record of one indexed document: its external id
// and every word in position order.
type Document struct {
	ID    string   `json:"id"`
	Words []string `json:"w"`
}
