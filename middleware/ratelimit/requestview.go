package ratelimit

import (
	"net/http"

	"accessrl/middleware/ratelimit/domain"
)

// httpRequestView adapts *http.Request onto domain.RequestView.
// Everything below the top-level package sees requests only through
// this interface.
type httpRequestView struct {
	r *http.Request
}

func newRequestView(r *http.Request) httpRequestView {
	return httpRequestView{r: r}
}

func (v httpRequestView) Header(name string) string {
	return v.r.Header.Get(name)
}

func (v httpRequestView) RemoteAddr() string {
	return v.r.RemoteAddr
}

func (v httpRequestView) Principal() (domain.Principal, bool) {
	return domain.PrincipalFromContext(v.r.Context())
}

var _ domain.RequestView = httpRequestView{}
