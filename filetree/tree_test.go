package filetree

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(adds []Addition) []string {
	var out []string
	for _, a := range adds {
		out = append(out, a.Path)
	}
	sort.Strings(out)
	return out
}

func existingTree() *Node {
	return Build([]Entry{
		{Path: "readme.md", FileToken: "sf_readme", SizeBytes: 10},
		{Path: "docs/intro.md", FileToken: "sf_intro", SizeBytes: 20},
		{Path: "docs/img/logo.png", FileToken: "sf_logo", SizeBytes: 30},
	}, StatusExisting)
}

func TestBuildCreatesFoldersForIntermediateSegments(t *testing.T) {
	tree := existingTree()

	docs := Find(tree, "docs")
	require.NotNil(t, docs)
	assert.True(t, docs.IsFolder)
	assert.Equal(t, StatusExisting, docs.Status)

	img := Find(tree, "docs/img")
	require.NotNil(t, img)
	assert.True(t, img.IsFolder)

	logo := Find(tree, "docs/img/logo.png")
	require.NotNil(t, logo)
	assert.False(t, logo.IsFolder)
	assert.Equal(t, "sf_logo", logo.FileToken)
	assert.Equal(t, "logo.png", logo.Name)
}

func TestBuildSynthesizedFoldersStayExistingForStagedFiles(t *testing.T) {
	tree := Build([]Entry{{Path: "new/nested/file.txt", Payload: []byte("x")}}, StatusToAdd)

	assert.Equal(t, StatusExisting, Find(tree, "new").Status)
	assert.Equal(t, StatusExisting, Find(tree, "new/nested").Status)
	assert.Equal(t, StatusToAdd, Find(tree, "new/nested/file.txt").Status)
}

func TestFlattenBuildRoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "a.txt", Payload: []byte("a")},
		{Path: "dir/b.txt", Payload: []byte("b")},
		{Path: "dir/sub/c.txt", Payload: []byte("c")},
	}
	adds, deletes := Flatten(Build(entries, StatusToAdd))

	assert.Empty(t, deletes)
	assert.Equal(t, []string{"a.txt", "dir/b.txt", "dir/sub/c.txt"}, paths(adds))
	for _, a := range adds {
		switch a.Path {
		case "a.txt":
			assert.Equal(t, []byte("a"), a.Payload)
		case "dir/b.txt":
			assert.Equal(t, []byte("b"), a.Payload)
		case "dir/sub/c.txt":
			assert.Equal(t, []byte("c"), a.Payload)
		}
	}
}

func TestMergekeepsBaseAndAddsIncoming(t *testing.T) {
	base := existingTree()
	staged := Build([]Entry{
		{Path: "docs/new.md", Payload: []byte("new")},
		{Path: "extra.txt", Payload: []byte("extra")},
	}, StatusToAdd)

	merged := Merge(base, staged)

	// staged paths present
	adds, _ := Flatten(merged)
	assert.Equal(t, []string{"docs/new.md", "extra.txt"}, paths(adds))

	// pre-existing paths retained unchanged
	for _, p := range []string{"readme.md", "docs/intro.md", "docs/img/logo.png"} {
		n := Find(merged, p)
		require.NotNil(t, n, p)
		assert.Equal(t, StatusExisting, n.Status)
	}

	// base not modified
	assert.Nil(t, Find(base, "extra.txt"))
}

func TestMergeIncomingFileWinsOverExisting(t *testing.T) {
	base := existingTree()
	staged := Build([]Entry{{Path: "docs/intro.md", Payload: []byte("v2")}}, StatusToAdd)

	merged := Merge(base, staged)

	n := Find(merged, "docs/intro.md")
	require.NotNil(t, n)
	assert.Equal(t, StatusToAdd, n.Status)
	assert.Equal(t, []byte("v2"), n.Payload)
}

func TestMergeLastWriterWinsOnStagedPath(t *testing.T) {
	base := Merge(existingTree(), Build([]Entry{{Path: "note.txt", Payload: []byte("first")}}, StatusToAdd))
	merged := Merge(base, Build([]Entry{{Path: "note.txt", Payload: []byte("second")}}, StatusToAdd))

	adds, _ := Flatten(merged)
	require.Len(t, adds, 1)
	assert.Equal(t, []byte("second"), adds[0].Payload)
}

func TestMarkForDeleteFolderCascades(t *testing.T) {
	tree := MarkForDelete(existingTree(), "docs")

	for _, p := range []string{"docs", "docs/intro.md", "docs/img", "docs/img/logo.png"} {
		n := Find(tree, p)
		require.NotNil(t, n, p)
		assert.Equal(t, StatusToDelete, n.Status, p)
	}
	assert.Equal(t, StatusExisting, Find(tree, "readme.md").Status)

	adds, deletes := Flatten(tree)
	assert.Empty(t, adds)
	sort.Strings(deletes)
	assert.Equal(t, []string{"sf_intro", "sf_logo"}, deletes)
}

func TestUnmarkDeleteRestoresSubtree(t *testing.T) {
	tree := MarkForDelete(existingTree(), "docs")
	tree = UnmarkDelete(tree, "docs")

	for _, p := range []string{"docs", "docs/intro.md", "docs/img/logo.png"} {
		assert.Equal(t, StatusExisting, Find(tree, p).Status, p)
	}
	_, deletes := Flatten(tree)
	assert.Empty(t, deletes)
}

func TestMarkForDeleteOnStagedLeafRemovesIt(t *testing.T) {
	tree := Merge(existingTree(), Build([]Entry{{Path: "pending.txt", Payload: []byte("p")}}, StatusToAdd))
	tree = MarkForDelete(tree, "pending.txt")

	assert.Nil(t, Find(tree, "pending.txt"))
	adds, deletes := Flatten(tree)
	assert.Empty(t, adds)
	assert.Empty(t, deletes)
}

func TestRemoveStagedNodeLeavesDeleteMarksAlone(t *testing.T) {
	tree := MarkForDelete(existingTree(), "docs/intro.md")
	tree = Merge(tree, Build([]Entry{{Path: "tmp/staged.txt", Payload: []byte("s")}}, StatusToAdd))

	tree = RemoveStagedNode(tree, "tmp/staged.txt")

	assert.Nil(t, Find(tree, "tmp/staged.txt"))
	assert.Equal(t, StatusToDelete, Find(tree, "docs/intro.md").Status)

	// removing a non-staged node is a no-op
	tree = RemoveStagedNode(tree, "readme.md")
	assert.NotNil(t, Find(tree, "readme.md"))
}

func TestMarkForDeleteUnknownPathIsNoop(t *testing.T) {
	before := existingTree()
	after := MarkForDelete(before, "does/not/exist")

	adds, deletes := Flatten(after)
	assert.Empty(t, adds)
	assert.Empty(t, deletes)
}

func TestOperationsDoNotMutateInput(t *testing.T) {
	tree := existingTree()
	_ = MarkForDelete(tree, "docs")
	assert.Equal(t, StatusExisting, Find(tree, "docs/intro.md").Status)

	_ = Merge(tree, Build([]Entry{{Path: "x.txt", Payload: []byte("x")}}, StatusToAdd))
	assert.Nil(t, Find(tree, "x.txt"))
}
