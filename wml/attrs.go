package wml

import "strconv"

// BoolAttr returns the named attribute interpreted as a boolean, or def if
// the attribute is absent or not a recognized boolean form.
func (n *Node) BoolAttr(key string, def bool) bool {
	v, ok := n.LookupAttr(key)
	if !ok {
		return def
	}
	switch v {
	case "yes", "true", "1", "on":
		return true
	case "no", "false", "0", "off":
		return false
	}
	return def
}

// SetBoolAttr sets the named attribute to "yes" or "no".
func (n *Node) SetBoolAttr(key string, value bool) {
	if value {
		n.SetAttr(key, "yes")
	} else {
		n.SetAttr(key, "no")
	}
}

// IntAttr returns the named attribute as an int64, or def if it is absent
// or unparsable.
func (n *Node) IntAttr(key string, def int64) int64 {
	v, ok := n.LookupAttr(key)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// SetIntAttr sets the named attribute to the decimal form of value.
func (n *Node) SetIntAttr(key string, value int64) {
	n.SetAttr(key, strconv.FormatInt(value, 10))
}
