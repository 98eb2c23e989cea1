package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the persisted types. Timestamps are
// stored as Unix microseconds.
var (
	IDMUS          = idMUS{}
	DocumentMUS    = documentMUS{}
	ChunkMUS       = chunkMUS{}
	QueryRecordMUS   = queryRecordMUS{}
	QueryFeedbackMUS = queryFeedbackMUS{}
	VectorMUS        = vectorMUS{}
)

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (id ID, n int, err error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(d.Id), bs)
	n += ord.String.Marshal(d.Title, bs[n:])
	n += ord.String.Marshal(d.Filename, bs[n:])
	n += ord.String.Marshal(d.FileType, bs[n:])
	n += varint.Int64.Marshal(d.FileSize, bs[n:])
	n += varint.Int.Marshal(d.PageCount, bs[n:])
	n += varint.Uint64.Marshal(uint64(d.OwnerId), bs[n:])
	n += ord.String.Marshal(string(d.Status), bs[n:])
	n += varint.Int64.Marshal(d.CreatedAt.UnixMicro(), bs[n:])
	n += varint.Int64.Marshal(d.UpdatedAt.UnixMicro(), bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	var (
		n1     int
		id     uint64
		status string
		micros int64
	)
	id, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	d.Id = ID(id)
	d.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.FileType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.FileSize, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.PageCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	id, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.OwnerId = ID(id)
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Status = DocumentStatus(status)
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.CreatedAt = time.UnixMicro(micros).UTC()
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.UpdatedAt = time.UnixMicro(micros).UTC()
	return
}

func (documentMUS) Size(d Document) (size int) {
	size = varint.Uint64.Size(uint64(d.Id))
	size += ord.String.Size(d.Title)
	size += ord.String.Size(d.Filename)
	size += ord.String.Size(d.FileType)
	size += varint.Int64.Size(d.FileSize)
	size += varint.Int.Size(d.PageCount)
	size += varint.Uint64.Size(uint64(d.OwnerId))
	size += ord.String.Size(string(d.Status))
	size += varint.Int64.Size(d.CreatedAt.UnixMicro())
	size += varint.Int64.Size(d.UpdatedAt.UnixMicro())
	return size
}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(c.DocumentId), bs)
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += ord.String.Marshal(c.Content, bs[n:])
	n += varint.Int64.Marshal(c.CreatedAt.UnixMicro(), bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var (
		n1     int
		id     uint64
		micros int64
	)
	id, n, err = varint.Uint64.Unmarshal(bs)
	if err != nil {
		return
	}
	c.DocumentId = ID(id)
	c.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.CreatedAt = time.UnixMicro(micros).UTC()
	return
}

func (chunkMUS) Size(c Chunk) (size int) {
	size = varint.Uint64.Size(uint64(c.DocumentId))
	size += varint.Int.Size(c.Index)
	size += ord.String.Size(c.Content)
	size += varint.Int64.Size(c.CreatedAt.UnixMicro())
	return size
}

type sourceMUS struct{}

func (sourceMUS) Marshal(s Source, bs []byte) (n int) {
	n = varint.Int.Marshal(s.SourceNumber, bs)
	n += varint.Uint64.Marshal(uint64(s.DocumentId), bs[n:])
	n += ord.String.Marshal(s.Title, bs[n:])
	n += varint.Int.Marshal(s.FirstChunkIndex, bs[n:])
	n += varint.Int.Marshal(s.LastChunkIndex, bs[n:])
	n += ord.String.Marshal(s.Excerpt, bs[n:])
	return n
}

func (sourceMUS) Unmarshal(bs []byte) (s Source, n int, err error) {
	var (
		n1 int
		id uint64
	)
	s.SourceNumber, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	id, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s.DocumentId = ID(id)
	s.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s.FirstChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s.LastChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	s.Excerpt, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (sourceMUS) Size(s Source) (size int) {
	size = varint.Int.Size(s.SourceNumber)
	size += varint.Uint64.Size(uint64(s.DocumentId))
	size += ord.String.Size(s.Title)
	size += varint.Int.Size(s.FirstChunkIndex)
	size += varint.Int.Size(s.LastChunkIndex)
	size += ord.String.Size(s.Excerpt)
	return size
}

type queryRecordMUS struct{}

func (queryRecordMUS) Marshal(r QueryRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.Id, bs)
	n += ord.String.Marshal(r.SessionId, bs[n:])
	n += ord.String.Marshal(r.Question, bs[n:])
	n += ord.String.Marshal(r.Answer, bs[n:])
	n += varint.Int.Marshal(len(r.Sources), bs[n:])
	for _, s := range r.Sources {
		n += sourceMUS{}.Marshal(s, bs[n:])
	}
	n += ord.String.Marshal(string(r.Status), bs[n:])
	n += varint.Int64.Marshal(r.ResponseTimeMs, bs[n:])
	n += varint.Int64.Marshal(r.CreatedAt.UnixMicro(), bs[n:])
	return n
}

func (queryRecordMUS) Unmarshal(bs []byte) (r QueryRecord, n int, err error) {
	var (
		n1     int
		count  int
		status string
		micros int64
	)
	r.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	r.SessionId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Question, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Answer, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	count, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if count > 0 {
		r.Sources = make([]Source, count)
		for i := 0; i < count; i++ {
			r.Sources[i], n1, err = sourceMUS{}.Unmarshal(bs[n:])
			n += n1
			if err != nil {
				return
			}
		}
	}
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Status = QueryStatus(status)
	r.ResponseTimeMs, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.CreatedAt = time.UnixMicro(micros).UTC()
	return
}

func (queryRecordMUS) Size(r QueryRecord) (size int) {
	size = ord.String.Size(r.Id)
	size += ord.String.Size(r.SessionId)
	size += ord.String.Size(r.Question)
	size += ord.String.Size(r.Answer)
	size += varint.Int.Size(len(r.Sources))
	for _, s := range r.Sources {
		size += sourceMUS{}.Size(s)
	}
	size += ord.String.Size(string(r.Status))
	size += varint.Int64.Size(r.ResponseTimeMs)
	size += varint.Int64.Size(r.CreatedAt.UnixMicro())
	return size
}

type queryFeedbackMUS struct{}

func (queryFeedbackMUS) Marshal(f QueryFeedback, bs []byte) (n int) {
	n = ord.String.Marshal(f.QueryId, bs)
	n += varint.Int.Marshal(f.Rating, bs[n:])
	n += ord.String.Marshal(f.Comment, bs[n:])
	n += varint.Int64.Marshal(f.CreatedAt.UnixMicro(), bs[n:])
	return n
}

func (queryFeedbackMUS) Unmarshal(bs []byte) (f QueryFeedback, n int, err error) {
	var (
		n1     int
		micros int64
	)
	f.QueryId, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	f.Rating, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	f.Comment, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	micros, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	f.CreatedAt = time.UnixMicro(micros).UTC()
	return
}

func (queryFeedbackMUS) Size(f QueryFeedback) (size int) {
	size = ord.String.Size(f.QueryId)
	size += varint.Int.Size(f.Rating)
	size += ord.String.Size(f.Comment)
	size += varint.Int64.Size(f.CreatedAt.UnixMicro())
	return size
}

type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	var (
		n1    int
		count int
	)
	count, n, err = varint.Int.Unmarshal(bs)
	if err != nil || count == 0 {
		return
	}
	v = make([]float32, count)
	for i := 0; i < count; i++ {
		v[i], n1, err = varint.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Float32.Size(f)
	}
	return size
}
