package assembler

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coursepilot/internal/model"
	"coursepilot/internal/repository"
)

func newTestAssembler(t *testing.T) (*Assembler, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Document{}, &model.DocumentChunk{}))

	docRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	return New(docRepo, chunkRepo), db
}

func seedDoc(t *testing.T, db *gorm.DB, userID uint, filename, status string, chunkContents ...string) *model.Document {
	t.Helper()
	doc := &model.Document{
		CourseID:        1,
		UserID:          userID,
		Filename:        filename,
		MimeType:        "text/plain",
		SizeBytes:       10,
		StorageLocation: "loc",
		Status:          status,
	}
	require.NoError(t, db.Create(doc).Error)
	for i, content := range chunkContents {
		require.NoError(t, db.Create(&model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    content,
		}).Error)
	}
	return doc
}

func TestAssembleEmptyRequest(t *testing.T) {
	asm, _ := newTestAssembler(t)

	text, included, err := asm.Assemble(nil, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, included)
}

func TestAssembleIncludesOnlyCompletedDocuments(t *testing.T) {
	asm, db := newTestAssembler(t)
	ready := seedDoc(t, db, 1, "syllabus.pdf", model.DocumentStatusCompleted, "week one topics", "week two topics")
	pending := seedDoc(t, db, 1, "slides.pdf", model.DocumentStatusProcessing, "half parsed")
	failed := seedDoc(t, db, 1, "broken.pdf", model.DocumentStatusFailed)

	text, included, err := asm.Assemble([]uint{ready.ID, pending.ID, failed.ID}, 1)
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, ready.ID, included[0].ID)
	assert.Contains(t, text, "week one topics")
	assert.NotContains(t, text, "half parsed")
}

func TestAssembleDocumentHeaderFormat(t *testing.T) {
	asm, db := newTestAssembler(t)
	doc := seedDoc(t, db, 1, "notes.txt", model.DocumentStatusCompleted, "alpha", "beta")

	text, _, err := asm.Assemble([]uint{doc.ID}, 1)
	require.NoError(t, err)
	assert.Equal(t, "=== notes.txt ===\n\nalpha\n\nbeta", text)
	assert.Equal(t, 1, strings.Count(text, "=== notes.txt ==="))
}

func TestAssembleExcludesOtherUsersDocuments(t *testing.T) {
	asm, db := newTestAssembler(t)
	theirs := seedDoc(t, db, 2, "private.txt", model.DocumentStatusCompleted, "secret content")

	text, included, err := asm.Assemble([]uint{theirs.ID}, 1)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, included)
}

func TestAssembleSkipsCompletedDocumentWithoutChunks(t *testing.T) {
	asm, db := newTestAssembler(t)
	empty := seedDoc(t, db, 1, "empty.txt", model.DocumentStatusCompleted)
	full := seedDoc(t, db, 1, "full.txt", model.DocumentStatusCompleted, "real content here")

	text, included, err := asm.Assemble([]uint{empty.ID, full.ID}, 1)
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, full.ID, included[0].ID)
	assert.NotContains(t, text, "empty.txt")
}
