// Package search builds image-search requests and performs them over one
// reusable transport session.
//
// # Requests
//
// BuildRequest turns a model.Query into a Request for the text or the
// reverse image-search endpoint. Text queries send q and tbm=isch; reverse
// queries send image_url together with the empty encoded_image,
// image_content and filename parameters and hl=en. NewImageRequest builds the
// plain GET used for image downloads, without the search headers.
//
// # Transport
//
// Client wraps a single http.Client shared by every request of a process:
//   - each GET has its own 60 second budget
//   - at most five connections are open at any time
//   - certificate verification is disabled
//   - traffic optionally goes through a SOCKS5 dialer
//
// # Usage
//
//	client := search.NewClient(search.WithMaxConns(5))
//	defer client.Close()
//	req, err := search.BuildRequest(query, endpoints, search.DefaultHeader(ua, referer))
//	page, err := client.FetchPage(ctx, req)
package search
