package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"talaria/internal/talerr"
)

// RemoteClient abstracts the HTTP surface the remote-update check needs, so
// tests can substitute a fake without standing up a real server. Head takes
// the caller's cached ETag so it can be sent as If-None-Match; notModified
// reports a 304 response (spec §4.F check_remote_updates, §6 ETag
// protocol).
type RemoteClient interface {
	Head(ctx context.Context, url, ifNoneMatch string) (etag string, notModified bool, err error)
	Get(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPRemoteClient is the production RemoteClient, backed by a real
// *http.Client (spec §6 external interfaces).
type HTTPRemoteClient struct {
	HTTP *http.Client
}

func (c HTTPRemoteClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c HTTPRemoteClient) Head(ctx context.Context, url, ifNoneMatch string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", false, talerr.Wrap(talerr.ExternalFailure, "build HEAD request", err)
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return "", false, talerr.Wrap(talerr.ExternalFailure, "HEAD remote manifest", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return resp.Header.Get("ETag"), true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, talerr.Newf(talerr.ExternalFailure, "HEAD remote manifest: status %d", resp.StatusCode)
	}
	return resp.Header.Get("ETag"), false, nil
}

func (c HTTPRemoteClient) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, talerr.Wrap(talerr.ExternalFailure, "build GET request", err)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, talerr.Wrap(talerr.ExternalFailure, "GET remote manifest", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, talerr.Newf(talerr.ExternalFailure, "GET remote manifest: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// CheckRemoteUpdates sends localETag as If-None-Match and reports whether
// the remote manifest has changed. A 304 response (notModified) always
// means no update, independent of any ETag the server chooses to echo
// (spec §4.F check_remote_updates, scenario 6).
func CheckRemoteUpdates(ctx context.Context, client RemoteClient, url, localETag string) (bool, error) {
	remoteETag, notModified, err := client.Head(ctx, url, localETag)
	if err != nil {
		return false, err
	}
	if notModified {
		return false, nil
	}
	return remoteETag != localETag, nil
}

// FetchRemote retrieves and decodes a remote manifest. The wire format is
// always JSON regardless of what the local store persists in, since JSON is
// the documented external interface format (spec §6).
func FetchRemote(ctx context.Context, client RemoteClient, url string) (TemporalManifest, error) {
	var m TemporalManifest
	body, err := client.Get(ctx, url)
	if err != nil {
		return m, err
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return m, talerr.Wrap(talerr.IOFailure, "read remote manifest body", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, talerr.Wrap(talerr.Corrupted, fmt.Sprintf("decode remote manifest from %s", url), err)
	}
	return m, nil
}
