package syncengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

const localIDPrefix = "local_"

// NewID returns an offline id: local_<unix-millis>_<random>.
func (e *Engine) NewID() string {
	now := e.opts.Now()
	suffix, err := common.MakeRandHexString(5)
	if err != nil {
		suffix = strconv.FormatInt(now.UnixNano()%1e9, 36)
	}
	return fmt.Sprintf("%s%d_%s", localIDPrefix, now.UnixMilli(), suffix)
}

// IsLocalID reports whether id was generated offline.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}
