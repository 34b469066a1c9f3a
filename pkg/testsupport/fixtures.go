package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-community-cache/internal/persistence"
)

// Community is a set of rows to seed a test database with.
type Community struct {
	Members     []persistence.Member     `json:"members"`
	Groups      []persistence.Group      `json:"groups"`
	Posts       []persistence.Post       `json:"posts"`
	Attachments []persistence.Attachment `json:"attachments"`
	Comments    []persistence.Comment    `json:"comments"`
}

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// LoadCommunity reads a Community from a JSON fixture.
func LoadCommunity(t *testing.T, path string) Community {
	t.Helper()

	var c Community
	LoadFixtureJSON(t, path, &c)
	return c
}

// DefaultCommunity returns two members, one group, two posts with an
// attachment each and a comment on the first post. Ids start at 1.
func DefaultCommunity(now time.Time) Community {
	now = now.UTC()
	return Community{
		Members: []persistence.Member{
			{ID: 1, Nickname: "alice", CreatedAt: now, ModifiedAt: now},
			{ID: 2, Nickname: "bob", CreatedAt: now, ModifiedAt: now},
		},
		Groups: []persistence.Group{
			{ID: 1, Name: "gophers", CreatedAt: now, ModifiedAt: now},
		},
		Posts: []persistence.Post{
			{ID: 1, GroupID: 1, MemberID: 1, Nickname: "alice", Title: "first", Content: "hello", PostStatus: persistence.PostStatusPublic, CreatedAt: now, ModifiedAt: now},
			{ID: 2, GroupID: 1, MemberID: 2, Nickname: "bob", Title: "second", Content: "hi", PostStatus: persistence.PostStatusPublic, CreatedAt: now, ModifiedAt: now},
		},
		Attachments: []persistence.Attachment{
			{ID: 1, PostID: 1, OriginalFileName: "a.png", StoreFileName: "a-1.png", StoreFilePath: "posts/1/a-1.png", FileSize: 10, ContentType: "image/png", CreatedAt: now, ModifiedAt: now},
			{ID: 2, PostID: 2, OriginalFileName: "b.png", StoreFileName: "b-2.png", StoreFilePath: "posts/2/b-2.png", FileSize: 20, ContentType: "image/png", CreatedAt: now, ModifiedAt: now},
		},
		Comments: []persistence.Comment{
			{ID: 1, PostID: 1, MemberID: 2, Content: "nice", CreatedAt: now, ModifiedAt: now},
		},
	}
}

// Seed inserts every row of c.
func Seed(t *testing.T, db bun.IDB, c Community) {
	t.Helper()
	ctx := context.Background()

	insert := func(name string, model any, n int) {
		if n == 0 {
			return
		}
		if _, err := db.NewInsert().Model(model).Exec(ctx); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}

	insert("members", &c.Members, len(c.Members))
	insert("groups", &c.Groups, len(c.Groups))
	insert("posts", &c.Posts, len(c.Posts))
	insert("attachments", &c.Attachments, len(c.Attachments))
	insert("comments", &c.Comments, len(c.Comments))
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
