package catalogue

// User-facing texts.
const (
	// GenericErrorText is shown whenever a request fails; detail stays in the logs.
	GenericErrorText = "Произошла ошибка. Пожалуйста, нажмите /start."

	// RateLimitedText is shown when a user sends actions faster than allowed.
	RateLimitedText = "⏳ Слишком много запросов. Попробуйте через несколько секунд."

	welcomeTitle     = "🏫 Бот для выбора вузов"
	welcomeStatsHead = "📊 В базе данных:"
	welcomePrompt    = "Выберите специальность:"

	resultsSpecialty = "🎓 Специальность:"
	resultsFound     = "🏛 Найдено вузов:"
	otherSection     = "🌍 Вузы других городов:"
	passingScoreLine = "   🎯 Проходной балл: "
	siteLabel        = "Сайт"
	siteLinePrefix   = "   🔗 "

	noMatchFormat = "По специальности '%s' вузы не найдены."
)

// Button labels.
const (
	labelHelp           = "❓ Помощь"
	labelBackToChoice   = "🔙 Назад к выбору"
	labelOtherSpecialty = "🔙 Выбрать другую специальность"
	labelMainMenu       = "🏠 В главное меню"
	labelSpecialtyList  = "📋 Список специальностей"
)

// MaxLabelRunes bounds the specialty part of a menu button label.
const MaxLabelRunes = 20

// DefaultGlyphs is the menu glyph table. Positions past the table reuse the
// final glyph.
var DefaultGlyphs = []string{"💻", "💰", "⚖️", "🏥", "🧠", "🏗️", "🗣️", "📊", "📰", "🎨"}

// helpSection is one titled block of the help text.
type helpSection struct {
	title string
	lines []string
}

const helpTitle = "❓ Помощь по использованию бота"

// helpSections builds the help blocks; the local-city lines name city.
func helpSections(city string) []helpSection {
	return []helpSection{
		{
			title: "🎯 Особенности базы данных:",
			lines: []string{
				"• 10 самых популярных специальностей",
				"• " + localEmphasis(city),
				"• Для каждой специальности показаны 5-8 лучших вузов",
				"• Проходные баллы за 2024 год",
			},
		},
		{
			title: "📱 Как пользоваться:",
			lines: []string{
				"1. Нажмите /start",
				"2. Выберите специальность из списка",
				"3. Посмотрите список подходящих вузов",
				"4. " + localUniversities(city) + " показываются первыми",
			},
		},
		{
			title: "💡 Проходной балл:",
			lines: []string{
				"• Это сумма баллов ЕГЭ, необходимая для поступления",
				"• Чем выше балл, тем престижнее вуз",
				"• Баллы обновляются ежегодно",
			},
		},
		{
			title: "🏛 О вузах:",
			lines: []string{
				"• Для каждого вуза указан проходной балл",
				"• Есть ссылки на официальные сайты",
				"• " + localUniversities(city) + " выделены отдельно",
			},
		},
	}
}

// localCityMoscow is the city whose adjective form the menu texts use.
const localCityMoscow = "Москва"

// localUniversities names the local-city group at the start of a sentence.
func localUniversities(city string) string {
	if city == localCityMoscow {
		return "Московские вузы"
	}
	return "Вузы города " + city
}

// localEmphasis returns the bullet naming the local city.
func localEmphasis(city string) string {
	if city == localCityMoscow {
		return "Акцент на московские вузы"
	}
	return "Акцент на вузы города " + city
}

// localSection returns the results header for the local-city group.
func localSection(city string) string {
	return "📍 " + localUniversities(city) + ":"
}
