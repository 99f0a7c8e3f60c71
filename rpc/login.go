package rpc

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// UnknownLoginError is used when the error page has no usable title.
const UnknownLoginError = "Unknown login error."

// RejectionReasonHeader carries the machine-readable cause of a failed login.
const RejectionReasonHeader = "X-IPA-Rejection-Reason"

const maxErrorPageSize = 64 << 10

// newAuthenticationError builds an AuthenticationError from a failed login response.
func newAuthenticationError(resp *http.Response) *AuthenticationError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPageSize))
	title, detail := parseErrorPage(body)

	if title == "" {
		title = UnknownLoginError
	}

	return &AuthenticationError{
		StatusCode: resp.StatusCode,
		Message:    title,
		Detail:     detail,
		Reason:     strings.TrimSpace(resp.Header.Get(RejectionReasonHeader)),
	}
}

// parseErrorPage extracts the <title> and the first <p> of an HTML error
// page. Both are best effort and empty when absent.
func parseErrorPage(page []byte) (title, detail string) {
	z := html.NewTokenizer(bytes.NewReader(page))

	var (
		inTitle, inParagraph bool
		titleText, paraText  strings.Builder
		titleDone, paraDone  bool
	)

	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpace(titleText.String()), collapseSpace(paraText.String())

		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				inTitle = !titleDone
			case "p":
				inParagraph = !paraDone
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				if inTitle {
					inTitle, titleDone = false, true
				}
			case "p":
				if inParagraph {
					inParagraph, paraDone = false, true
				}
			}

		case html.TextToken:
			if inTitle {
				titleText.Write(z.Text())
			}
			if inParagraph {
				paraText.Write(z.Text())
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
