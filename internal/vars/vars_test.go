package vars

import (
	"strings"
	"testing"
)

func TestCommitShort(t *testing.T) {
	defer func(c string) { Commit = c }(Commit)

	Commit = "da15c174cd2ada1ad247906536c101e8f6799def"
	if got := CommitShort(); got != "da15c17" {
		t.Errorf("CommitShort = %q", got)
	}

	Commit = "abc"
	if got := CommitShort(); got != "abc" {
		t.Errorf("CommitShort = %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "vitals-agent/"+Version) {
		t.Errorf("UserAgent = %q", ua)
	}
}

func TestInfo(t *testing.T) {
	info := Info()
	if info.Name != Name || info.License != License || info.URL != URL {
		t.Errorf("Info = %+v", info)
	}
}
