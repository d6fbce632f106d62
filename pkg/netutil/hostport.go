// Package netutil provides network-related utility functions.
package netutil

import (
	"net"
	"strconv"
)

// ParseHostPort parses a host:port string into separate host and port values.
func ParseHostPort(arg string) (host string, port int, err error) {
	var portStr string
	host, portStr, err = net.SplitHostPort(arg)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// DialAddress turns a listen address into one a local client can connect
// to: wildcard and empty hosts become the matching loopback address.
func DialAddress(listen string) (string, error) {
	host, port, err := ParseHostPort(listen)
	if err != nil {
		return "", err
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
