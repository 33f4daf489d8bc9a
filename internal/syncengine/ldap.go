package syncengine

import (
	"fmt"

	ldap "github.com/go-ldap/ldap/v3"
)

// LDAPResolver implements NameResolver via a directory lookup of
// sAMAccountName -> objectSid, the SPEC_FULL §4.7 fallback used when
// the synthetic-ACE name-translation trick can't resolve a named ACE
// (the destination CIFS server doesn't recognize the name — e.g. a
// domain user not local to the test share). Grounded on the teacher's
// internal/ldap.Client dial/bind/search shape, trimmed to the one
// search this package needs.
type LDAPResolver struct {
	url    string
	baseDN string
}

// NewLDAPResolver dials dialURL once to fail fast on a bad address,
// then closes the connection — Resolve dials fresh per call since
// *ldap.Conn is not meant to be shared across concurrent ACE lookups.
func NewLDAPResolver(dialURL string) (*LDAPResolver, error) {
	conn, err := ldap.DialURL(dialURL)
	if err != nil {
		return nil, fmt.Errorf("syncengine: ldap dial %s: %w", dialURL, err)
	}
	conn.Close()
	return &LDAPResolver{url: dialURL}, nil
}

// Resolve looks up name's objectSid via an anonymous-bind search for
// sAMAccountName, after stripping name's leading "\DOMAIN\" prefix.
func (r *LDAPResolver) Resolve(name string) (string, error) {
	conn, err := ldap.DialURL(r.url)
	if err != nil {
		return "", &Error{Kind: ErrCredentialMap, Err: fmt.Errorf("ldap dial: %w", err)}
	}
	defer conn.Close()

	account := trimDomainPrefix(name)
	req := ldap.NewSearchRequest(
		r.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(account)),
		[]string{"objectSid"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", &Error{Kind: ErrCredentialMap, Err: err}
	}
	if len(res.Entries) == 0 {
		return "", &Error{Kind: ErrCredentialMap, Err: fmt.Errorf("no directory entry for %q", account)}
	}
	sid := res.Entries[0].GetAttributeValue("objectSid")
	if sid == "" {
		return "", &Error{Kind: ErrCredentialMap, Err: fmt.Errorf("directory entry for %q has no objectSid", account)}
	}
	return sid, nil
}

func trimDomainPrefix(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '\\' {
			return name[i+1:]
		}
	}
	return name
}
