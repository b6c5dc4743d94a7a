package capability

import (
	"context"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/papyr-io/papyr/internal/logging"
	"github.com/papyr-io/papyr/internal/rule"
	"github.com/papyr-io/papyr/internal/security"
)

// Surface is the only way a script touches the outside world: a closed set
// of host functions, each checked against the policy before it executes.
// One Surface is built per invocation, closed over its Context and the
// policy active at call start, so concurrent executions share no mutable
// script-visible state. The shared pieces (fetcher, cookie jar) take all
// per-call state as arguments.
type Surface struct {
	Ctx     *Context
	Policy  *security.Policy
	fetcher *Fetcher
	files   *Files
	counter *RequestCounter
	logger  *logging.Logger

	callCtx context.Context
	vm      *goja.Runtime

	ops       atomic.Int64
	violation atomic.Pointer[security.Violation]
}

// NewSurface builds a surface for one execution. counter may be shared
// across a batch; everything else is per-call.
func NewSurface(ctx *Context, policy *security.Policy, fetcher *Fetcher, files *Files, counter *RequestCounter, logger *logging.Logger) *Surface {
	if logger == nil {
		logger = logging.NewNop()
	}
	if counter == nil {
		counter = NewRequestCounter()
	}
	return &Surface{
		Ctx:     ctx,
		Policy:  policy,
		fetcher: fetcher,
		files:   files,
		counter: counter,
		logger:  logger,
		callCtx: context.Background(),
	}
}

// BindDeadline attaches the deadline-bearing context used for native calls
// so the HTTP client's own timeout never exceeds the remaining budget.
func (s *Surface) BindDeadline(ctx context.Context) {
	s.callCtx = ctx
}

// Ops returns how many host calls the script has made. The engine's
// observer checks this against the policy's instruction ceiling.
func (s *Surface) Ops() int64 {
	return s.ops.Load()
}

// Violation returns the first policy denial raised during the run, if any.
func (s *Surface) Violation() *security.Violation {
	return s.violation.Load()
}

func (s *Surface) tick() {
	s.ops.Add(1)
}

// fail converts a host error into a JS exception. Typed violations are
// recorded first so the engine can classify the outcome even if the script
// swallows the exception.
func (s *Surface) fail(err error) {
	if v, ok := security.AsViolation(err); ok {
		s.violation.CompareAndSwap(nil, v)
	}
	panic(s.vm.NewGoError(err))
}

// Install registers every host object on the VM. The script sees nothing
// else: no require, no process, no reflection surface.
func (s *Surface) Install(vm *goja.Runtime) {
	s.vm = vm

	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())
	vm.Set("eval", goja.Undefined())

	s.installContext(vm)
	s.installHTTP(vm)
	s.installFile(vm)
	s.installCrypto(vm)
	s.installCodec(vm)
	s.installUtil(vm)
	s.installQuery(vm)
	s.installLog(vm)
}

func (s *Surface) installContext(vm *goja.Runtime) {
	src := vm.NewObject()
	src.Set("id", s.Ctx.SourceID)
	src.Set("name", s.Ctx.SourceName)
	src.Set("baseUrl", s.Ctx.BaseURL)
	vm.Set("source", src)

	if s.Ctx.Book != nil {
		book := vm.NewObject()
		book.Set("name", s.Ctx.Book.Name)
		book.Set("author", s.Ctx.Book.Author)
		book.Set("url", s.Ctx.Book.URL)
		vm.Set("book", book)
	} else {
		vm.Set("book", goja.Null())
	}

	if s.Ctx.Chapter != nil {
		chapter := vm.NewObject()
		chapter.Set("title", s.Ctx.Chapter.Title)
		chapter.Set("url", s.Ctx.Chapter.URL)
		chapter.Set("index", s.Ctx.Chapter.Index)
		vm.Set("chapter", chapter)
	} else {
		vm.Set("chapter", goja.Null())
	}
}

func (s *Surface) installHTTP(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("get", func(target string, headers map[string]string) map[string]interface{} {
		s.tick()
		resp, err := s.fetcher.Fetch(s.callCtx, s.Policy, s.counter, "GET", s.Ctx.AbsoluteURL(target), "", headers)
		if err != nil {
			s.fail(err)
		}
		return responseToMap(resp)
	})
	obj.Set("post", func(target, body string, headers map[string]string) map[string]interface{} {
		s.tick()
		resp, err := s.fetcher.Fetch(s.callCtx, s.Policy, s.counter, "POST", s.Ctx.AbsoluteURL(target), body, headers)
		if err != nil {
			s.fail(err)
		}
		return responseToMap(resp)
	})
	vm.Set("http", obj)
}

func responseToMap(resp *Response) map[string]interface{} {
	return map[string]interface{}{
		"status":   resp.Status,
		"body":     resp.Body,
		"headers":  resp.Headers,
		"finalUrl": resp.FinalURL,
	}
}

func (s *Surface) installFile(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("read", func(path string) string {
		s.tick()
		out, err := s.files.Read(s.Policy, path)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("write", func(path, data string) {
		s.tick()
		if err := s.files.Write(s.Policy, path, data); err != nil {
			s.fail(err)
		}
	})
	obj.Set("list", func(dir string) []string {
		s.tick()
		out, err := s.files.List(s.Policy, dir)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("delete", func(path string) {
		s.tick()
		if err := s.files.Delete(s.Policy, path); err != nil {
			s.fail(err)
		}
	})
	vm.Set("file", obj)
}

func (s *Surface) installCrypto(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("md5", func(v string) string { s.tick(); return Md5Hex(v) })
	obj.Set("sha1", func(v string) string { s.tick(); return Sha1Hex(v) })
	obj.Set("sha256", func(v string) string { s.tick(); return Sha256Hex(v) })
	obj.Set("sha3", func(v string) string { s.tick(); return Sha3Hex(v) })
	obj.Set("hmacSha256", func(key, v string) string { s.tick(); return HmacSha256Hex(key, v) })
	obj.Set("pbkdf2", func(password, salt string, iterations, keyLen int) string {
		s.tick()
		return Pbkdf2Hex(password, salt, iterations, keyLen)
	})
	obj.Set("aesEncrypt", func(plain, key, iv string) string {
		s.tick()
		out, err := AesEncryptBase64(plain, key, iv)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("aesDecrypt", func(encoded, key, iv string) string {
		s.tick()
		out, err := AesDecryptBase64(encoded, key, iv)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("desDecrypt", func(encoded, key, iv string) string {
		s.tick()
		out, err := DesDecryptBase64(encoded, key, iv)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("rsaEncrypt", func(publicPEM, plain string) string {
		s.tick()
		out, err := RsaEncryptBase64(publicPEM, plain)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("rsaDecrypt", func(privatePEM, encoded string) string {
		s.tick()
		out, err := RsaDecryptBase64(privatePEM, encoded)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	vm.Set("crypto", obj)
}

func (s *Surface) installCodec(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("base64Encode", func(v string) string { s.tick(); return Base64Encode(v) })
	obj.Set("base64Decode", func(v string) string {
		s.tick()
		out, err := Base64Decode(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("hexEncode", func(v string) string { s.tick(); return HexEncode(v) })
	obj.Set("hexDecode", func(v string) string {
		s.tick()
		out, err := HexDecode(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("urlEncode", func(v string) string { s.tick(); return URLEncode(v) })
	obj.Set("urlDecode", func(v string) string {
		s.tick()
		out, err := URLDecode(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("gzipDecode", func(v string) string {
		s.tick()
		out, err := GzipDecode(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("zlibDecode", func(v string) string {
		s.tick()
		out, err := ZlibDecode(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("jsonParse", func(v string) interface{} {
		s.tick()
		out, err := JSONParse(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("jsonString", func(v interface{}) string {
		s.tick()
		out, err := JSONString(v)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	vm.Set("codec", obj)
}

func (s *Surface) installUtil(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("absoluteUrl", func(href string) string { s.tick(); return s.Ctx.AbsoluteURL(href) })
	obj.Set("normalizeSpace", func(v string) string { s.tick(); return NormalizeSpace(v) })
	obj.Set("splitTrim", func(v, sep string) []string { s.tick(); return SplitTrim(v, sep) })
	obj.Set("unique", func(items []string) []string { s.tick(); return Unique(items) })
	obj.Set("timestamp", func() int64 { s.tick(); return Timestamp() })
	obj.Set("formatDate", func(layout string) string { s.tick(); return FormatDate(layout) })
	obj.Set("parseDate", func(value, layout string) int64 {
		s.tick()
		out, err := ParseDateMillis(value, layout)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("regexFind", func(v, pattern string) string {
		s.tick()
		out, err := RegexFind(v, pattern)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("regexFindAll", func(v, pattern string) []string {
		s.tick()
		out, err := RegexFindAll(v, pattern)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("regexReplaceAll", func(v, pattern, repl string) string {
		s.tick()
		out, err := RegexReplaceAll(v, pattern, repl)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	vm.Set("util", obj)
}

func (s *Surface) installQuery(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("all", func(html, itemRule string) []string {
		s.tick()
		out, err := rule.Fragments(html, itemRule)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("field", func(html, fieldRule string) string {
		s.tick()
		out, err := rule.First(html, fieldRule)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("textAll", func(html, fieldRule, sep string) string {
		s.tick()
		out, err := rule.TextAll(html, fieldRule, sep)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	obj.Set("pageText", func(html string) string {
		s.tick()
		out, err := rule.PageText(html)
		if err != nil {
			s.fail(err)
		}
		return out
	})
	vm.Set("query", obj)
}

func (s *Surface) installLog(vm *goja.Runtime) {
	obj := vm.NewObject()
	obj.Set("info", func(msg string) { s.tick(); s.logger.Info(msg) })
	obj.Set("warn", func(msg string) { s.tick(); s.logger.Warn(msg) })
	obj.Set("error", func(msg string) { s.tick(); s.logger.Error(msg) })
	vm.Set("log", obj)
}
