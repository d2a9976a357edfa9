package service

import (
	"testing"

	"shige-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userText(content string) model.Message {
	return model.Message{Role: model.RoleUser, Kind: model.KindText, Content: content}
}

func followUp(question string) model.Message {
	return model.Message{Role: model.RoleAssistant, Kind: model.KindFollowUp, Content: question}
}

func candidateMsg(title, artist string, confidence float64) model.Message {
	return model.Message{
		Role: model.RoleAssistant, Kind: model.KindCandidate,
		Title: title, Artist: artist, Confidence: confidence,
	}
}

func TestExtractFactsOnlyFromFollowUpAnswers(t *testing.T) {
	svc := NewContextService()

	messages := []model.Message{
		userText("what song has a saxophone intro"),
		followUp("你还记得它的曲风或年代吗？"),
		userText("it was 80s rock with a female singer"),
	}
	c := svc.Extract(messages)

	assert.Equal(t, "rock", c.Genre)
	assert.Equal(t, "80s", c.Era)
	assert.Equal(t, "female", c.ArtistGender)
	// 追问的回答不进入历史查询
	assert.Equal(t, []string{"what song has a saxophone intro"}, c.PriorQueries)
	assert.Equal(t, []string{"你还记得它的曲风或年代吗？"}, c.AskedQuestions)
}

func TestExtractEraHasOneShape(t *testing.T) {
	svc := NewContextService()

	// 同一年代的不同说法必须落成同一种形态
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"数字加s", "it was an 80s hit", "80s"},
		{"英文单词", "definitely from the eighties", "80s"},
		{"四位年份", "released around 1980s i believe", "1980s"},
		{"中文年代", "应该是80年代的歌", "80s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := svc.Extract([]model.Message{
				userText("what song is this"),
				followUp("你还记得它的年代吗？"),
				userText(tt.answer),
			})
			assert.Equal(t, tt.want, c.Era)
		})
	}
}

func TestExtractFreshQueryDoesNotProduceFacts(t *testing.T) {
	svc := NewContextService()

	// 没有追问在前，用户文本按原始查询处理，不提取事实
	c := svc.Extract([]model.Message{userText("maybe some jazz song with piano")})
	assert.Empty(t, c.Genre)
	assert.Empty(t, c.Instruments)
	assert.Equal(t, []string{"maybe some jazz song with piano"}, c.PriorQueries)
}

func TestExtractLyricFragmentAndInstruments(t *testing.T) {
	svc := NewContextService()

	messages := []model.Message{
		userText("find it for me"),
		followUp("你还记得某句歌词吗？"),
		userText(`the lyrics went "hello darkness my old friend" with a guitar and piano`),
	}
	c := svc.Extract(messages)

	assert.Equal(t, "hello darkness my old friend", c.LyricFragment)
	assert.ElementsMatch(t, []string{"guitar", "piano"}, c.Instruments)
}

func TestExtractNewAnswerOverridesOldFact(t *testing.T) {
	svc := NewContextService()

	messages := []model.Message{
		userText("looking for a song"),
		followUp("是快歌还是慢歌？"),
		userText("a fast one i think"),
		followUp("确定吗？"),
		userText("actually it was a slow ballad"),
	}
	c := svc.Extract(messages)
	assert.Equal(t, "slow", c.Tempo)
}

func TestExtractCollectsRejectedAndConfirmed(t *testing.T) {
	svc := NewContextService()

	messages := []model.Message{
		userText("what is this song"),
		candidateMsg("Wrong Song", "Nobody", 0.4),
		candidateMsg("Maybe Song", "Somebody", 0.7),
		candidateMsg("Right Song", "The Band", 0.9),
	}
	c := svc.Extract(messages)

	assert.Equal(t, []string{"Wrong Song - Nobody"}, c.RejectedCandidates)
	assert.Equal(t, []string{"Right Song - The Band"}, c.ConfirmedSongs)
	assert.Equal(t, model.FlowFound, c.Flow)
}

func TestExtractKeepsLastThreeQueries(t *testing.T) {
	svc := NewContextService()

	c := svc.Extract([]model.Message{
		userText("query one"), userText("query two"),
		userText("query three"), userText("query four"),
	})
	assert.Equal(t, []string{"query two", "query three", "query four"}, c.PriorQueries)
}

func TestExtractIsIdempotent(t *testing.T) {
	svc := NewContextService()
	messages := []model.Message{
		userText("find a sad folk song"),
		followUp("你还记得歌词吗？"),
		userText(`"the river runs cold" 大概是这样`),
		candidateMsg("Cold River", "Folk Duo", 0.5),
	}

	first := svc.Extract(messages)
	second := svc.Extract(messages)
	require.Equal(t, first, second)
}

func TestDeriveFlow(t *testing.T) {
	svc := NewContextService()

	t.Run("首轮", func(t *testing.T) {
		c := svc.Extract([]model.Message{userText("what song is this")})
		assert.Equal(t, model.FlowInitial, c.Flow)
	})

	t.Run("已有追问即进入细化", func(t *testing.T) {
		c := svc.Extract([]model.Message{
			userText("what song is this"),
			followUp("能描述一下曲风吗？"),
		})
		assert.Equal(t, model.FlowRefining, c.Flow)
	})

	t.Run("确认识别优先于细化", func(t *testing.T) {
		c := svc.Extract([]model.Message{
			userText("what song is this"),
			followUp("能描述一下曲风吗？"),
			userText("rock"),
			candidateMsg("Found It", "The Band", 0.85),
		})
		assert.Equal(t, model.FlowFound, c.Flow)
	})

	t.Run("纯信息提问", func(t *testing.T) {
		c := svc.Extract([]model.Message{
			userText("hi there how are you doing"),
			userText("why is jazz considered improvisational"),
		})
		assert.Equal(t, model.FlowGeneralQuestion, c.Flow)
	})
}

func TestDetectQueryIntent(t *testing.T) {
	svc := NewContextService()

	tests := []struct {
		name  string
		query string
		flow  model.ConversationFlow
		want  string
	}{
		{"明确的识别请求", "what song is playing right now", model.FlowInitial, model.QueryIntentSearch},
		{"明确的信息提问", "why was this written in 1975", model.FlowInitial, model.QueryIntentQuestion},
		{"两类关键词同分", "what song is this and why is it famous", model.FlowInitial, model.QueryIntentBoth},
		{"双零按流程偏向提问", "some vague words", model.FlowGeneralQuestion, model.QueryIntentQuestion},
		{"双零默认检索", "some vague words", model.FlowInitial, model.QueryIntentSearch},
		{"中文识别请求", "这首歌叫什么名字", model.FlowInitial, model.QueryIntentSearch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.DetectQueryIntent(tt.query, tt.flow))
		})
	}
}
