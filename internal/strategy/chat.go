package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// CommandPrefix is the fixed prefix of chat commands handled by the bot.
const CommandPrefix = "$A"

// strategyNames maps the user-facing strategy names onto strategy IDs.
var strategyNames = map[string]string{
	"低价小市值":   "low-price-small-market-value",
	"量价相关性":   "price-volume-corr-stock",
	"小市值":     "small-market-value",
	"伽利略":     "galileo",
	"财务基本面小市值": "small-market-value-and-fin",
	"反过度自信":   "anti-over-confidence-stock",
	"费迪南w":    "Ferdinand-WangYang",
	"费迪南x":    "Ferdinand-XiaoXiaoZhi",
	"低价股":     "low-price-stock",
	"费迪南":     "Ferdinand",
	"费迪南Q":    "Ferdinand-QuanQiuRen",
	"中证1000小市值": "small-market-value-limit",
	"费迪南成长":   "Ferdinand-growth",
	"哥白尼":     "copernicus",
	"流动性溢价":   "unliquidity",
	"北上七侠":    "seven-knights",
	"低估值高分红":  "low-valuation-high-dividend",
	"笛卡尔":     "descartes",
	"皮尔逊":     "pearson",
	"低估值":     "low-valuation",
	"缩量":      "low-volume-stock",
	"创造191":   "rocket-quants-191",
	"筹码分布":    "chip-distribution",
	"小市值基本面过滤": "small-market-value-filter",
	"量价小市值":   "small-market-value-price-volume-corr",
	"科技三杰":    "three-musketeers-new",
	"资金流":     "money-flow",
	"散户反买":    "retail-investors",
	"萨拉丁":     "Saladin",
	"筹码集中度":   "chip-concentration",
	"拿破仑":     "Napoleon-pro",
	"俾斯麦":     "Bismarck",
	"北上高频":    "event-nf-flow",
	"北上七侠事件":  "seven-knights-event",
	"资金流z":    "money-flow-zhen",
	"资金流t":    "money-flow-TianXingZhe",
	"资金流q":    "money-flow-QiGuai",
	"萨拉丁d":    "DingGuoQing",
	"萨拉丁h":    "HuangJinMieMieYang",
	"萨拉丁l":    "lzhh",
	"香农":      "shannon",
}

// Chat translates free-text bot commands into strategy fetches. Lookup and
// parse failures become user-facing reply strings, never errors.
type Chat struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewChat creates a chat command adapter around the fetcher.
func NewChat(fetcher *Fetcher, logger *slog.Logger) *Chat {
	return &Chat{
		fetcher: fetcher,
		logger:  logger.With(slog.String("component", "chat")),
	}
}

// HandleCommand processes one chat message. The second return value reports
// whether the message was addressed to this bot at all; messages without the
// command prefix are ignored.
func (c *Chat) HandleCommand(ctx context.Context, content string) (string, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || fields[0] != CommandPrefix {
		return "", false
	}

	if len(fields) != 4 {
		return "格式错误，请输入 $A 策略名 持仓周期 选股数量", true
	}

	name, period, countText := fields[1], fields[2], fields[3]
	id, ok := strategyNames[name]
	if !ok {
		return "策略不存在，请检查", true
	}

	count, err := strconv.Atoi(countText)
	if err != nil || count < 0 {
		return "格式错误，请输入 $A 策略名 持仓周期 选股数量", true
	}

	selection, err := c.fetcher.Fetch(ctx, id, period, count)
	if err != nil {
		var codeErr *CodeError
		if errors.As(err, &codeErr) {
			return codeErr.Error(), true
		}
		c.logger.Error("strategy fetch failed",
			slog.String("strategy", id),
			slog.String("error", err.Error()))
		return "获取数据失败，请稍后再试", true
	}

	return FormatSelection(selection), true
}

// FormatSelection renders a selection as a chat reply.
func FormatSelection(sel *Selection) string {
	var b strings.Builder
	fmt.Fprintf(&b, "选股时间: %s\n", sel.SelectTime)
	fmt.Fprintf(&b, "购买时间: %s\n", sel.BuyTime)
	b.WriteString("选股结果:\n")
	for _, stock := range sel.Stocks {
		fmt.Fprintf(&b, "%s (%s)\n", stock.Name, stock.Symbol)
	}
	return b.String()
}

// HelpText returns the usage text shown to chat users.
func HelpText() string {
	return "输入$A 策略名 持仓周期 选股数量，获取相应策略的最新选股结果\n" +
		"示例：$A 哥白尼 周 3，$A 资金流 2天 2\n" +
		"选股策略支持：换仓周期：周、月、自然月，选股数量：3、10、30\n" +
		"事件策略支持：换仓周期：2天、5天、10天，选股数量：2、5、10"
}
