package scanparse

import "strings"

// UnknownService 是服务名为空时的占位缩写。
const UnknownService = "?"

const abbrevLen = 4

var serviceAbbrev = map[string]string{
	"ftp":           "FTP",
	"ftp-data":      "FTPD",
	"ssh":           "SSH",
	"telnet":        "TEL",
	"smtp":          "SMTP",
	"domain":        "DNS",
	"http":          "HTTP",
	"http-proxy":    "PRXY",
	"http-alt":      "HTTP",
	"https":         "TLS",
	"https-alt":     "TLS",
	"pop3":          "POP3",
	"pop3s":         "POP3",
	"imap":          "IMAP",
	"imaps":         "IMAP",
	"rpcbind":       "RPC",
	"msrpc":         "RPC",
	"netbios-ssn":   "NBT",
	"microsoft-ds":  "SMB",
	"snmp":          "SNMP",
	"ldap":          "LDAP",
	"syslog":        "LOG",
	"ms-sql-s":      "MSSQL",
	"oracle":        "ORA",
	"mysql":         "SQL",
	"postgresql":    "PG",
	"ms-wbt-server": "RDP",
	"vnc":           "VNC",
	"redis":         "RDS",
	"mongodb":       "MGO",
	"elasticsearch": "ES",
	"submission":    "SMTP",
}

// Abbreviate 将服务名映射为固定缩写，未知服务截取前四个字符。
func Abbreviate(service string) string {
	name := strings.ToLower(strings.TrimSpace(service))
	if name == "" {
		return UnknownService
	}
	if abbr, ok := serviceAbbrev[strings.TrimSuffix(name, "?")]; ok {
		return abbr
	}
	runes := []rune(name)
	if len(runes) > abbrevLen {
		runes = runes[:abbrevLen]
	}
	return strings.ToUpper(string(runes))
}
