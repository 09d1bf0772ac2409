package store

import "time"

type User struct {
	ID           int64
	Email        string
	Username     string
	FirstName    string
	LastName     string
	Bio          string
	PasswordHash string
	IsStaff      bool
	CreatedAt    time.Time
}

type Board struct {
	ID          int64
	Name        string
	Description string
	Avatar      string
	AuthorID    int64
	CreatedAt   time.Time
}

func (b Board) OwningBoard() int64 { return b.ID }

// BoardListing is a board as seen by one user.
type BoardListing struct {
	Board
	IsFavored bool
	IsMember  bool
}

type BoardPatch struct {
	Name        *string
	Description *string
	Avatar      *string
}

type Membership struct {
	BoardID     int64
	UserID      int64
	IsModerator bool
	IsAuthor    bool
}

type Member struct {
	User
	IsModerator bool
}

type TagColor int

const (
	TagRed TagColor = iota + 1
	TagOrange
	TagYellow
	TagGreen
	TagBlue
	TagPurple
)

// TagColors lists every color a board is seeded with, in seed order.
var TagColors = []TagColor{TagRed, TagOrange, TagYellow, TagGreen, TagBlue, TagPurple}

var tagHex = map[TagColor]string{
	TagRed:    "#f35a5a",
	TagOrange: "#ff9b63",
	TagYellow: "#fdff97",
	TagGreen:  "#9bc665",
	TagBlue:   "#67b5fd",
	TagPurple: "#c173ff",
}

var tagNames = map[TagColor]string{
	TagRed:    "red",
	TagOrange: "orange",
	TagYellow: "yellow",
	TagGreen:  "green",
	TagBlue:   "blue",
	TagPurple: "purple",
}

func (c TagColor) Hex() string    { return tagHex[c] }
func (c TagColor) String() string { return tagNames[c] }

type Tag struct {
	ID      int64
	BoardID int64
	Name    string
	Color   TagColor
}

func (t Tag) OwningBoard() int64 { return t.BoardID }

type List struct {
	ID        int64
	BoardID   int64
	Name      string
	Position  int
	CreatedAt time.Time
}

func (l List) OwningBoard() int64 { return l.BoardID }

type Card struct {
	ID          int64
	ListID      int64
	BoardID     int64
	Name        string
	Description string
	Position    int
	CreatedAt   time.Time
}

func (c Card) OwningBoard() int64 { return c.BoardID }

type CardPatch struct {
	Name        *string
	Description *string
}

// CardFilter narrows ListCards. Zero fields do not filter.
type CardFilter struct {
	ViewerID      int64
	AllBoards     bool
	BoardID       int64
	ListID        int64
	Name          string
	ParticipantID int64
}

type Comment struct {
	ID        int64
	CardID    int64
	BoardID   int64
	AuthorID  int64
	Text      string
	PubDate   time.Time
	IsUpdated bool
}

func (c Comment) OwningBoard() int64 { return c.BoardID }
func (c Comment) AuthoredBy() int64  { return c.AuthorID }

type CheckItem struct {
	ID        int64
	CardID    int64
	BoardID   int64
	Text      string
	IsActive  bool
	CreatedAt time.Time
}

func (c CheckItem) OwningBoard() int64 { return c.BoardID }

type CheckItemPatch struct {
	Text     *string
	IsActive *bool
}

type CardFile struct {
	ID          int64
	CardID      int64
	BoardID     int64
	Name        string
	ObjectKey   string
	ContentType string
	Size        int64
	UploadedBy  int64
	CreatedAt   time.Time
}

func (f CardFile) OwningBoard() int64 { return f.BoardID }

type JoinRequest struct {
	ID        int64
	BoardID   int64
	UserID    int64
	InvitedBy int64
	CreatedAt time.Time
}

func (r JoinRequest) OwningBoard() int64 { return r.BoardID }
func (r JoinRequest) AddressedTo() int64 { return r.UserID }
