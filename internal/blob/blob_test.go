package blob

import (
	"encoding/base64"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storagelite/storagelite/internal/request"
	"github.com/storagelite/storagelite/pkg/errors"
)

func TestBlockID(t *testing.T) {
	id := BlockID(7)
	raw, err := base64.StdEncoding.DecodeString(id)
	require.NoError(t, err)
	assert.Equal(t, "00000007", string(raw))
	assert.Equal(t, len(BlockID(0)), len(BlockID(49999)), "block ids are fixed width")
}

func TestBuilders(t *testing.T) {
	tests := []struct {
		name   string
		build  func() (*request.Description, error)
		method string
		path   string
		query  map[string]string
	}{
		{"create container", CreateContainer("photos", nil).Build, http.MethodPut, "/photos", map[string]string{"restype": "container"}},
		{"delete container", DeleteContainer("photos").Build, http.MethodDelete, "/photos", map[string]string{"restype": "container"}},
		{"container properties", GetContainerProperties("photos").Build, http.MethodHead, "/photos", map[string]string{"restype": "container"}},
		{"put block", PutBlock("photos", "a/b.jpg", "MDAw", request.BytesBody([]byte("x"))).Build, http.MethodPut, "/photos/a/b.jpg",
			map[string]string{"comp": "block", "blockid": "MDAw"}},
		{"put block list", PutBlockList("photos", "b.jpg", nil, PutOptions{}).Build, http.MethodPut, "/photos/b.jpg", map[string]string{"comp": "blocklist"}},
		{"properties", GetProperties("photos", "b.jpg").Build, http.MethodHead, "/photos/b.jpg", nil},
		{"metadata", SetMetadata("photos", "b.jpg", map[string]string{"k": "v"}).Build, http.MethodPut, "/photos/b.jpg", map[string]string{"comp": "metadata"}},
		{"delete", DeleteBlob("photos", "/b.jpg", true).Build, http.MethodDelete, "/photos/b.jpg", nil},
		{"list", ListBlobs("photos", ListOptions{Prefix: "a/", MaxResults: 10}).Build, http.MethodGet, "/photos",
			map[string]string{"restype": "container", "comp": "list", "prefix": "a/", "maxresults": "10"}},
		{"list containers", ListContainers(ListContainersOptions{Prefix: "ph", Marker: "m"}).Build, http.MethodGet, "/",
			map[string]string{"comp": "list", "prefix": "ph", "marker": "m"}},
		{"container metadata", SetContainerMetadata("photos", map[string]string{"k": "v"}).Build, http.MethodPut, "/photos",
			map[string]string{"restype": "container", "comp": "metadata"}},
		{"block list", GetBlockList("photos", "b.jpg").Build, http.MethodGet, "/photos/b.jpg", map[string]string{"comp": "blocklist", "blocklisttype": "all"}},
		{"copy", StartCopy("https://acct.blob.core.windows.net/src/a.jpg", "photos", "b.jpg").Build, http.MethodPut, "/photos/b.jpg", nil},
		{"create page blob", CreatePageBlob("disks", "d.vhd", 4*PageSize, PutOptions{}).Build, http.MethodPut, "/disks/d.vhd", nil},
		{"put page", PutPage("disks", "d.vhd", PageSize, request.BytesBody(make([]byte, PageSize))).Build, http.MethodPut, "/disks/d.vhd",
			map[string]string{"comp": "page"}},
		{"clear page", ClearPage("disks", "d.vhd", 0, 2*PageSize).Build, http.MethodPut, "/disks/d.vhd", map[string]string{"comp": "page"}},
		{"page ranges", GetPageRanges("disks", "d.vhd", 0, 0).Build, http.MethodGet, "/disks/d.vhd", map[string]string{"comp": "pagelist"}},
		{"create append blob", CreateAppendBlob("logs", "today", PutOptions{}).Build, http.MethodPut, "/logs/today", nil},
		{"append block", AppendBlock("logs", "today", request.BytesBody([]byte("x")), -1).Build, http.MethodPut, "/logs/today",
			map[string]string{"comp": "appendblock"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.build()
			require.NoError(t, err)
			require.NoError(t, d.Validate())
			assert.Equal(t, request.ServiceBlob, d.Service)
			assert.Equal(t, tt.method, d.Method)
			assert.Equal(t, tt.path, d.Path)
			for k, v := range tt.query {
				assert.Equal(t, v, d.Query.Get(k), "query %s", k)
			}
		})
	}
}

func TestBuilders_RejectMissingNames(t *testing.T) {
	for _, build := range []func() (*request.Description, error){
		CreateContainer("", nil).Build,
		PutBlob("photos", "", nil, PutOptions{}).Build,
		PutBlock("photos", "b", "", nil).Build,
		GetProperties("a/b", "c").Build,
		SetContainerMetadata("", nil).Build,
		StartCopy("not a url", "photos", "b").Build,
		StartCopy("https://acct.blob.core.windows.net/src/a", "photos", "").Build,
		CreatePageBlob("disks", "d", 1000, PutOptions{}).Build,
		CreatePageBlob("disks", "d", -PageSize, PutOptions{}).Build,
		PutPage("disks", "d", 100, request.BytesBody(make([]byte, PageSize))).Build,
		PutPage("disks", "d", 0, request.BytesBody(make([]byte, 10))).Build,
		PutPage("disks", "d", 0, nil).Build,
		ClearPage("disks", "d", 0, 0).Build,
		AppendBlock("logs", "today", nil, -1).Build,
	} {
		_, err := build()
		require.Error(t, err)
		assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))
	}
}

func TestPutBlobHeaders(t *testing.T) {
	d, err := PutBlob("photos", "b.txt", request.BytesBody([]byte("hello")),
		PutOptions{ContentType: "text/plain", Metadata: map[string]string{"owner": "ops"}}).Build()
	require.NoError(t, err)

	assert.Equal(t, BlockBlob, d.Header.Get("x-ms-blob-type"))
	assert.Equal(t, "text/plain", d.Header.Get("x-ms-blob-content-type"))
	assert.Equal(t, "ops", d.Header.Get("x-ms-meta-owner"))
	assert.Equal(t, int64(5), d.ContentLength())
}

func TestPutBlockListBody(t *testing.T) {
	d, err := PutBlockList("photos", "b", []string{BlockID(0), BlockID(1)}, PutOptions{}).Build()
	require.NoError(t, err)

	body, err := io.ReadAll(d.Body.Reader())
	require.NoError(t, err)
	assert.Contains(t, string(body), "<BlockList><Latest>"+BlockID(0)+"</Latest><Latest>"+BlockID(1)+"</Latest></BlockList>")
}

func TestParseProperties(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Length", "1024")
	h.Set("Content-Type", "image/jpeg")
	h.Set("ETag", `"0x8D"`)
	h.Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
	h.Set("x-ms-blob-type", "BlockBlob")
	h.Set("x-ms-meta-Owner", "ops")

	props, err := ParseProperties(h)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), props.ContentLength)
	assert.Equal(t, "image/jpeg", props.ContentType)
	assert.Equal(t, `"0x8D"`, props.ETag)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), props.LastModified)
	assert.Equal(t, "BlockBlob", props.BlobType)
	assert.Equal(t, map[string]string{"owner": "ops"}, props.Metadata)

	h.Set("Content-Length", "lots")
	_, err = ParseProperties(h)
	assert.Error(t, err)
}

func TestParseListResult(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="https://acct.blob.core.windows.net/" ContainerName="photos">
  <Prefix>a/</Prefix>
  <MaxResults>2</MaxResults>
  <Blobs>
    <Blob>
      <Name>a/one.jpg</Name>
      <Properties>
        <Last-Modified>Mon, 01 Jan 2024 00:00:00 GMT</Last-Modified>
        <Etag>0x1</Etag>
        <Content-Length>10</Content-Length>
        <Content-Type>image/jpeg</Content-Type>
        <BlobType>BlockBlob</BlobType>
      </Properties>
      <Metadata><owner>ops</owner></Metadata>
    </Blob>
    <BlobPrefix><Name>a/sub/</Name></BlobPrefix>
  </Blobs>
  <NextMarker>token</NextMarker>
</EnumerationResults>`

	result, err := ParseListResult([]byte(body))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "a/one.jpg", result.Items[0].Name)
	assert.Equal(t, int64(10), result.Items[0].ContentLength)
	assert.Equal(t, "0x1", result.Items[0].ETag)
	assert.Equal(t, map[string]string{"owner": "ops"}, result.Items[0].Metadata)
	assert.Equal(t, []string{"a/sub/"}, result.Prefixes)
	assert.Equal(t, "token", result.NextMarker)

	_, err = ParseListResult([]byte("not xml"))
	assert.Error(t, err)
}

func TestPageHeaders(t *testing.T) {
	d, err := CreatePageBlob("disks", "d.vhd", 8*PageSize, PutOptions{}).Build()
	require.NoError(t, err)
	assert.Equal(t, PageBlob, d.Header.Get("x-ms-blob-type"))
	assert.Equal(t, "4096", d.Header.Get("x-ms-blob-content-length"))

	d, err = PutPage("disks", "d.vhd", 2*PageSize, request.BytesBody(make([]byte, 2*PageSize))).Build()
	require.NoError(t, err)
	assert.Equal(t, "update", d.Header.Get("x-ms-page-write"))
	assert.Equal(t, "bytes=1024-2047", d.AttemptHeader().Get(request.HeaderRange))

	d, err = ClearPage("disks", "d.vhd", 0, PageSize).Build()
	require.NoError(t, err)
	assert.Equal(t, "clear", d.Header.Get("x-ms-page-write"))
	assert.Nil(t, d.Body)
	assert.Equal(t, "bytes=0-511", d.AttemptHeader().Get(request.HeaderRange))

	d, err = GetPageRanges("disks", "d.vhd", PageSize, 0).Build()
	require.NoError(t, err)
	assert.Equal(t, "bytes=512-", d.AttemptHeader().Get(request.HeaderRange))
}

func TestAppendAndCopyHeaders(t *testing.T) {
	d, err := CreateAppendBlob("logs", "today", PutOptions{ContentType: "text/plain"}).Build()
	require.NoError(t, err)
	assert.Equal(t, AppendBlob, d.Header.Get("x-ms-blob-type"))
	assert.Equal(t, "text/plain", d.Header.Get("x-ms-blob-content-type"))

	d, err = AppendBlock("logs", "today", request.BytesBody([]byte("abc")), 42).Build()
	require.NoError(t, err)
	assert.Equal(t, "42", d.Header.Get("x-ms-blob-condition-appendpos"))

	d, err = AppendBlock("logs", "today", request.BytesBody([]byte("abc")), -1).Build()
	require.NoError(t, err)
	assert.Empty(t, d.Header.Get("x-ms-blob-condition-appendpos"))

	d, err = StartCopy("https://acct.blob.core.windows.net/src/a%20b.jpg", "photos", "b.jpg").Build()
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net/src/a%20b.jpg", d.Header.Get("x-ms-copy-source"))
}

func TestParseContainerList(t *testing.T) {
	body := "\ufeff" + `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="https://acct.blob.core.windows.net/">
  <Containers>
    <Container>
      <Name>logs</Name>
      <Properties>
        <Last-Modified>Mon, 01 Jan 2024 00:00:00 GMT</Last-Modified>
        <Etag>0x2</Etag>
      </Properties>
      <Metadata><team>ops</team></Metadata>
    </Container>
    <Container><Name>photos</Name><Properties><Etag>0x3</Etag></Properties></Container>
  </Containers>
  <NextMarker>photos</NextMarker>
</EnumerationResults>`

	result, err := ParseContainerList([]byte(body))
	require.NoError(t, err)
	require.Len(t, result.Containers, 2)
	assert.Equal(t, "logs", result.Containers[0].Name)
	assert.Equal(t, "0x2", result.Containers[0].ETag)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), result.Containers[0].LastModified)
	assert.Equal(t, map[string]string{"team": "ops"}, result.Containers[0].Metadata)
	assert.Nil(t, result.Containers[1].Metadata)
	assert.Equal(t, "photos", result.NextMarker)

	_, err = ParseContainerList([]byte("<EnumerationResults>"))
	assert.Error(t, err)
}
