package testutil

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const pageSize = 512

type xmlContainer struct {
	Name       string `xml:"Name"`
	Properties struct {
		LastModified string `xml:"Last-Modified"`
		Etag         string `xml:"Etag"`
	} `xml:"Properties"`
	Metadata *xmlMetadata `xml:"Metadata,omitempty"`
}

type xmlContainerList struct {
	XMLName         xml.Name       `xml:"EnumerationResults"`
	ServiceEndpoint string         `xml:"ServiceEndpoint,attr"`
	Prefix          string         `xml:"Prefix,omitempty"`
	Marker          string         `xml:"Marker,omitempty"`
	MaxResults      int            `xml:"MaxResults,omitempty"`
	Containers      []xmlContainer `xml:"Containers>Container"`
	NextMarker      string         `xml:"NextMarker"`
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

// serveAccount answers requests addressed to the account itself.
func (s *Server) serveAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if r.Method != http.MethodGet || q.Get("comp") != "list" {
		writeError(w, r, http.StatusBadRequest, "InvalidQueryParameterValue", "comp")
		return
	}
	prefix, marker := q.Get("prefix"), q.Get("marker")
	max, _ := strconv.Atoi(q.Get("maxresults"))

	names := make([]string, 0, len(s.containers))
	for n := range s.containers {
		if strings.HasPrefix(n, prefix) && n > marker {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	result := xmlContainerList{ServiceEndpoint: s.Endpoint(), Prefix: prefix, Marker: marker, MaxResults: max}
	for i, n := range names {
		if max > 0 && i == max {
			result.NextMarker = names[i-1]
			break
		}
		c := s.containers[n]
		item := xmlContainer{Name: n}
		item.Properties.LastModified = c.modified.Format(http.TimeFormat)
		item.Properties.Etag = c.etag
		if q.Get("include") == "metadata" && len(c.meta) > 0 {
			item.Metadata = &xmlMetadata{}
			for _, k := range sortedKeys(c.meta) {
				item.Metadata.Items = append(item.Metadata.Items, xmlMetaItem{XMLName: xml.Name{Local: k}, Value: c.meta[k]})
			}
		}
		result.Containers = append(result.Containers, item)
	}
	writeXML(w, result)
}

func (s *Server) putPage(w http.ResponseWriter, r *http.Request, o *object, body []byte) {
	if o == nil || !o.committed() {
		writeError(w, r, http.StatusNotFound, "BlobNotFound", "The specified blob does not exist.")
		return
	}
	if o.kind() != "PageBlob" {
		writeError(w, r, http.StatusConflict, "InvalidBlobType", "The blob type is invalid for this operation.")
		return
	}
	start, end, ok := parseRange(r.Header.Get("x-ms-range"))
	if !ok || end < 0 || start%pageSize != 0 || (end+1)%pageSize != 0 || end >= int64(len(o.data)) {
		writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidPageRange", "The page range specified is invalid.")
		return
	}

	switch r.Header.Get("x-ms-page-write") {
	case "update":
		if int64(len(body)) != end-start+1 {
			writeError(w, r, http.StatusBadRequest, "InvalidHeaderValue", "body length does not match x-ms-range")
			return
		}
		copy(o.data[start:], body)
		for p := start / pageSize; p <= end/pageSize; p++ {
			o.pages[p] = true
		}
	case "clear":
		clear(o.data[start : end+1])
		for p := start / pageSize; p <= end/pageSize; p++ {
			delete(o.pages, p)
		}
	default:
		writeError(w, r, http.StatusBadRequest, "InvalidHeaderValue", "x-ms-page-write")
		return
	}
	s.touch(o)
	w.Header().Set("ETag", o.etag)
	w.WriteHeader(http.StatusCreated)
}

type xmlPageRange struct {
	Start int64 `xml:"Start"`
	End   int64 `xml:"End"`
}

type xmlPageList struct {
	XMLName xml.Name       `xml:"PageList"`
	Ranges  []xmlPageRange `xml:"PageRange"`
}

func (s *Server) pageRanges(w http.ResponseWriter, r *http.Request, o *object) {
	if o.kind() != "PageBlob" {
		writeError(w, r, http.StatusConflict, "InvalidBlobType", "The blob type is invalid for this operation.")
		return
	}
	first, last := int64(0), int64(len(o.data))/pageSize-1
	if v := r.Header.Get("x-ms-range"); v != "" {
		start, end, ok := parseRange(v)
		if !ok {
			writeError(w, r, http.StatusRequestedRangeNotSatisfiable, "InvalidRange", "The range specified is invalid.")
			return
		}
		first = start / pageSize
		if end >= 0 && end/pageSize < last {
			last = end / pageSize
		}
	}

	var list xmlPageList
	for p := first; p <= last; p++ {
		if !o.pages[p] {
			continue
		}
		n := len(list.Ranges)
		if n > 0 && list.Ranges[n-1].End == p*pageSize-1 {
			list.Ranges[n-1].End = (p+1)*pageSize - 1
			continue
		}
		list.Ranges = append(list.Ranges, xmlPageRange{Start: p * pageSize, End: (p+1)*pageSize - 1})
	}
	writeXML(w, list)
}

func (s *Server) appendBlock(w http.ResponseWriter, r *http.Request, o *object, body []byte) {
	if o == nil || !o.committed() {
		writeError(w, r, http.StatusNotFound, "BlobNotFound", "The specified blob does not exist.")
		return
	}
	if o.kind() != "AppendBlob" {
		writeError(w, r, http.StatusConflict, "InvalidBlobType", "The blob type is invalid for this operation.")
		return
	}
	offset := int64(len(o.data))
	if v := r.Header.Get("x-ms-blob-condition-appendpos"); v != "" {
		if pos, err := strconv.ParseInt(v, 10, 64); err != nil || pos != offset {
			writeError(w, r, http.StatusPreconditionFailed, "AppendPositionConditionNotMet", "The append position condition specified was not met.")
			return
		}
	}
	o.data = append(o.data, body...)
	s.touch(o)
	w.Header().Set("ETag", o.etag)
	w.Header().Set("x-ms-blob-append-offset", strconv.FormatInt(offset, 10))
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) copyBlob(w http.ResponseWriter, r *http.Request, c *container, name string) {
	u, err := url.Parse(r.Header.Get("x-ms-copy-source"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidHeaderValue", "x-ms-copy-source")
		return
	}
	rest, ok := strings.CutPrefix(u.Path, "/"+Account+"/")
	srcContainer, srcName, _ := strings.Cut(rest, "/")
	var src *object
	if sc, found := s.containers[srcContainer]; ok && found {
		src = sc.objects[srcName]
	}
	if src == nil || src.dir || !src.committed() {
		writeError(w, r, http.StatusNotFound, "CannotVerifyCopySource", "The specified blob does not exist.")
		return
	}

	o := s.objectFor(c, name)
	o.data = append([]byte{}, src.data...)
	o.contentType = src.contentType
	o.meta = src.meta
	if meta := metaFromHeader(r.Header); len(meta) > 0 {
		o.meta = meta
	}
	o.blobType = src.blobType
	o.blocks = nil
	o.committedBlocks = append([]stagedBlock(nil), src.committedBlocks...)
	o.pages = nil
	if src.pages != nil {
		o.pages = make(map[int64]bool, len(src.pages))
		for p := range src.pages {
			o.pages[p] = true
		}
	}
	s.touch(o)
	w.Header().Set("ETag", o.etag)
	w.Header().Set("x-ms-copy-id", fmt.Sprintf("copy-%d", s.seq))
	w.Header().Set("x-ms-copy-status", "success")
	w.WriteHeader(http.StatusAccepted)
}

type xmlBlock struct {
	Name string `xml:"Name"`
	Size int    `xml:"Size"`
}

type xmlBlockList struct {
	XMLName     xml.Name   `xml:"BlockList"`
	Committed   []xmlBlock `xml:"CommittedBlocks>Block"`
	Uncommitted []xmlBlock `xml:"UncommittedBlocks>Block"`
}

func (s *Server) blockList(w http.ResponseWriter, o *object) {
	var list xmlBlockList
	for _, b := range o.committedBlocks {
		list.Committed = append(list.Committed, xmlBlock{Name: b.id, Size: len(b.data)})
	}
	for _, id := range sortedBlockIDs(o.blocks) {
		list.Uncommitted = append(list.Uncommitted, xmlBlock{Name: id, Size: len(o.blocks[id])})
	}
	writeXML(w, list)
}

func sortedBlockIDs(blocks map[string][]byte) []string {
	ids := make([]string, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
